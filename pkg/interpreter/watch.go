package interpreter

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchDebounce is how long a changed program file must stay quiet before it
// is consulted again.
var WatchDebounce = 500 * time.Millisecond

// Watch re-consults program files under the plugin paths whenever they are
// written or created. It returns immediately; watching stops when ctx is
// done or the interpreter is closed. Calling Watch while already watching is
// a no-op, and a stopped watcher can be started again.
func (i *Interpreter) Watch(ctx context.Context) error {
	i.watchMu.Lock()
	defer i.watchMu.Unlock()
	if i.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &watcher{
		fw:      fw,
		logger:  i.logger.With().Str("component", "watcher").Logger(),
		reload:  i.reload,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}
	for _, p := range i.registry.Plugins() {
		if p.Path != "" {
			w.add(p.Path)
		}
	}
	i.watcher = w

	go func() {
		w.run(ctx)
		i.watchMu.Lock()
		if i.watcher == w {
			i.watcher = nil
		}
		i.watchMu.Unlock()
	}()
	w.logger.Info().Int("dirs", len(fw.WatchList())).Msg("watching program files")
	return nil
}

// reload consults one changed file with the configured error policy.
func (i *Interpreter) reload(ctx context.Context, path string) {
	if err := i.Consult(ctx, path, CatchErrors(true)); err != nil {
		i.logger.Error().Err(err).Str("path", path).Msg("reload failed")
	}
}

type watcher struct {
	fw     *fsnotify.Watcher
	logger zerolog.Logger
	reload func(ctx context.Context, path string)

	mu      sync.Mutex
	pending map[string]*time.Timer

	stopOnce sync.Once
	done     chan struct{}
}

// add watches path and, for a directory, every directory below it.
func (w *watcher) add(path string) {
	info, err := os.Stat(path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("failed to stat path for watching")
		return
	}
	if !info.IsDir() {
		if err := w.fw.Add(filepath.Dir(path)); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("failed to watch file")
		}
		return
	}
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fw.Add(p)
		}
		return nil
	})
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
	}
}

func (w *watcher) run(ctx context.Context) {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.add(event.Name)
					continue
				}
			}
			if !isProgram(event.Name) {
				continue
			}
			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("program file changed")
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// schedule debounces reloads per file.
func (w *watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(WatchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.reload(ctx, path)
	})
}

func (w *watcher) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()
		_ = w.fw.Close()
	})
}
