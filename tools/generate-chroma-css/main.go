// Package main generates the Chroma stylesheet used by highlighted code blocks.
// The light style applies by default and the dark style under prefers-color-scheme.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/pflag"
)

func main() {
	out := pflag.StringP("out", "o", "", "write the stylesheet to this file instead of stdout")
	light := pflag.String("light", "github", "chroma style for light mode")
	dark := pflag.String("dark", "github-dark", "chroma style for dark mode")
	pflag.Parse()

	var buf bytes.Buffer
	if err := writeStylesheet(&buf, *light, *dark); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating CSS: %v\n", err)
		os.Exit(1)
	}

	if *out == "" {
		_, _ = buf.WriteTo(os.Stdout)
		return
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil { //nolint:gosec // generated public asset
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *out, err)
		os.Exit(1)
	}
}

func writeStylesheet(w io.Writer, lightName, darkName string) error {
	lightStyle, err := lookup(lightName)
	if err != nil {
		return err
	}
	darkStyle, err := lookup(darkName)
	if err != nil {
		return err
	}

	formatter := html.New(
		html.WithClasses(true),
		html.ClassPrefix(""),
	)

	fmt.Fprintf(w, "/* Generated by tools/generate-chroma-css (%s / %s). Do not edit. */\n", lightName, darkName)
	if err := formatter.WriteCSS(w, lightStyle); err != nil {
		return err
	}

	var darkCSS bytes.Buffer
	if err := formatter.WriteCSS(&darkCSS, darkStyle); err != nil {
		return err
	}
	fmt.Fprintln(w, "@media (prefers-color-scheme: dark) {")
	for _, line := range strings.Split(strings.TrimRight(darkCSS.String(), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w, "}")
	return nil
}

func lookup(name string) (*chroma.Style, error) {
	if _, ok := styles.Registry[name]; !ok {
		return nil, fmt.Errorf("style %q not found", name)
	}
	return styles.Get(name), nil
}
