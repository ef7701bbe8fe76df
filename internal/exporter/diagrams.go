package exporter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Love-Rox/rox-homepage/internal/raster"
	d2renderer "github.com/Love-Rox/rox-homepage/internal/renderer/d2"
)

// diagramEncoder turns fenced d2 blocks into data URI images so the PDF renderer
// doesn't need to understand diagram nodes.
type diagramEncoder struct {
	d2     *d2renderer.Renderer
	logger *slog.Logger
}

// encode rewrites ```d2 fences into Markdown image tags with embedded PNG data.
// If rendering fails, the original fence is left intact so the source still shows.
func (e *diagramEncoder) encode(ctx context.Context, raw []byte) ([]byte, error) {
	var (
		out          bytes.Buffer
		scanner      = bufio.NewScanner(bytes.NewReader(raw))
		inFence      bool
		fenceMarker  string
		fenceLang    string
		diagramLines bytes.Buffer
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !inFence {
			if marker, lang, ok := parseFenceStart(trimmed); ok {
				inFence = true
				fenceMarker = marker
				fenceLang = lang
				diagramLines.Reset()
				if !isDiagramFence(lang) {
					writeLine(&out, line)
				}
				continue
			}
			writeLine(&out, line)
			continue
		}

		if isFenceEnd(trimmed, fenceMarker) {
			if isDiagramFence(fenceLang) {
				if err := e.flushD2(ctx, &out, diagramLines.String()); err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					e.logger.WarnContext(ctx, "d2 diagram left as source in export", slog.Any("err", err))
					writeLine(&out, fenceMarker+fenceLang)
					out.Write(diagramLines.Bytes())
					writeLine(&out, fenceMarker)
				}
			} else {
				writeLine(&out, line)
			}
			inFence = false
			fenceMarker = ""
			fenceLang = ""
			continue
		}

		if isDiagramFence(fenceLang) {
			writeLine(&diagramLines, line)
		} else {
			writeLine(&out, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Unclosed fence: emit buffered content as-is
	if inFence && isDiagramFence(fenceLang) {
		writeLine(&out, fenceMarker+fenceLang)
		out.Write(diagramLines.Bytes())
	}

	return out.Bytes(), nil
}

func (e *diagramEncoder) flushD2(ctx context.Context, out *bytes.Buffer, source string) error {
	if strings.TrimSpace(source) == "" {
		return nil
	}
	if e == nil || e.d2 == nil {
		return errors.New("d2 renderer unavailable")
	}

	res, err := e.d2.Render(ctx, source)
	if err != nil {
		return fmt.Errorf("render d2: %w", err)
	}

	pngData, err := raster.PNG([]byte(res.SVG))
	if err != nil {
		return fmt.Errorf("rasterize d2 svg: %w", err)
	}

	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
	_, err = fmt.Fprintf(out, "![Diagram](%s)\n\n", dataURI)
	return err
}

func parseFenceStart(line string) (marker, lang string, ok bool) {
	for _, c := range []rune{'`', '~'} {
		n := leadingCount(line, c)
		if n >= 3 {
			marker = line[:n]
			lang = strings.TrimSpace(line[n:])
			return marker, lang, true
		}
	}
	return "", "", false
}

func isFenceEnd(line, marker string) bool {
	if marker == "" {
		return false
	}
	n := leadingCount(line, rune(marker[0]))
	return n >= len(marker) && n == len(line)
}

func isDiagramFence(lang string) bool {
	return strings.EqualFold(strings.TrimSpace(lang), "d2")
}

func leadingCount(line string, char rune) int {
	count := 0
	for _, r := range line {
		if r != char {
			break
		}
		count++
	}
	return count
}

func writeLine(buf *bytes.Buffer, line string) {
	buf.WriteString(line)
	buf.WriteByte('\n')
}
