package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	eventTypeListingUpdated = "listingUpdated"
	eventTypeDeleted        = "deleted"
	eventTypePageUpdated    = "pageUpdated"
	eventTypeUnknown        = "unknown"
)

// Event describes a content change delivered to live-reload subscribers.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
}

// Watcher observes the content tree and fans change events out to subscribers.
// It is only started in development mode.
type Watcher struct {
	ctx         context.Context
	logger      *slog.Logger
	watcher     *fsnotify.Watcher
	cancel      context.CancelFunc
	subscribers map[uint64]*subscriber
	root        string
	subCounter  atomic.Uint64
	subsMu      sync.RWMutex
}

type subscriber struct {
	ctx context.Context
	ch  chan Event
}

// NewWatcher starts watching root and every directory below it.
func NewWatcher(parentCtx context.Context, root string, logger *slog.Logger) (*Watcher, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	w := &Watcher{
		root:        absRoot,
		logger:      logger.With("component", "content_watcher"),
		watcher:     fw,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[uint64]*subscriber),
	}

	if err := w.watchRecursive(absRoot); err != nil {
		cancel()
		_ = fw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Close stops the watcher and closes every subscriber channel.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

// Subscribe registers for change events. The returned channel closes when ctx is done.
func (w *Watcher) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 8)
	id := w.subCounter.Add(1)

	w.subsMu.Lock()
	w.subscribers[id] = &subscriber{ctx: ctx, ch: ch}
	w.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-w.ctx.Done():
		}
		w.removeSubscriber(id)
	}()

	return ch
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.Any("err", err))
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name == "" {
		return
	}

	rel := w.relativePath(event.Name)
	op := event.Op
	w.logger.Debug("fsnotify event", slog.String("path", rel), slog.String("op", op.String()))

	if op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watchRecursive(event.Name)
		}
	}

	eventType := classifyEvent(event.Name, op, isMarkdownPath(event.Name))
	if eventType == eventTypeUnknown {
		return
	}
	w.broadcast(Event{Type: eventType, Path: rel, Timestamp: time.Now()})
}

func (w *Watcher) broadcast(evt Event) {
	w.subsMu.RLock()
	var stale []uint64
	for id, sub := range w.subscribers {
		select {
		case <-sub.ctx.Done():
			stale = append(stale, id)
		case <-w.ctx.Done():
			stale = append(stale, id)
		case sub.ch <- evt:
		default:
			// drop event when subscriber lags
		}
	}
	w.subsMu.RUnlock()

	for _, id := range stale {
		w.removeSubscriber(id)
	}
}

func (w *Watcher) removeSubscriber(id uint64) {
	w.subsMu.Lock()
	if sub, ok := w.subscribers[id]; ok {
		close(sub.ch)
		delete(w.subscribers, id)
	}
	w.subsMu.Unlock()
}

func (w *Watcher) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != w.root {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("failed to watch directory", slog.String("path", path), slog.Any("err", err))
			}
		}
		return nil
	})
}

func (w *Watcher) relativePath(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func classifyEvent(path string, op fsnotify.Op, isMarkdown bool) string {
	switch {
	case op&fsnotify.Remove != 0:
		if isMarkdown {
			if _, err := os.Stat(path); err == nil {
				return eventTypePageUpdated
			}
			return eventTypeDeleted
		}
		return eventTypeListingUpdated
	case op&fsnotify.Rename != 0:
		return eventTypeListingUpdated
	case op&(fsnotify.Write|fsnotify.Create) != 0:
		if isMarkdown {
			return eventTypePageUpdated
		}
		return eventTypeListingUpdated
	default:
		return eventTypeUnknown
	}
}

func isMarkdownPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".md")
}
