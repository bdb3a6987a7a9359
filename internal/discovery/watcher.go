package discovery

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-scans host configurations when any known config file changes.
// Events are debounced because editors fire bursts of writes per save.
type Watcher struct {
	mu      sync.Mutex
	scanner *Scanner
	watcher *fsnotify.Watcher
	onScan  func([]HostConfig)
	log     *zap.Logger

	debounceDur time.Duration
	lastEvent   map[string]time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher that calls onScan with the fresh scan result
// after each (debounced) config change.
func NewWatcher(scanner *Scanner, onScan func([]HostConfig), log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		scanner:     scanner,
		watcher:     fw,
		onScan:      onScan,
		log:         log,
		debounceDur: 500 * time.Millisecond,
		lastEvent:   make(map[string]time.Time),
	}, nil
}

// Start watches the parent directories of every known config path. Missing
// directories are skipped; a config appearing later in a watched directory
// is still picked up. A stopped watcher can be started again.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if w.watcher == nil {
		// Stop closed the previous fsnotify instance.
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.mu.Unlock()
			return err
		}
		w.watcher = fw
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	fw, stopCh, doneCh := w.watcher, w.stopCh, w.doneCh
	w.mu.Unlock()

	watched := make(map[string]struct{})
	for _, host := range w.scanner.Scan() {
		dir := filepath.Dir(host.ConfigPath)
		if _, ok := watched[dir]; ok {
			continue
		}
		if err := fw.Add(dir); err != nil {
			w.log.Debug("Not watching directory",
				zap.String("dir", dir), zap.Error(err))
			continue
		}
		watched[dir] = struct{}{}
	}

	go w.loop(fw, stopCh, doneCh)
	w.log.Info("Discovery watcher started", zap.Int("directories", len(watched)))
	return nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher, stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.debounced(event.Name) {
				continue
			}
			w.log.Debug("Host config changed", zap.String("path", event.Name))
			if w.onScan != nil {
				w.onScan(w.scanner.Scan())
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("Watcher error", zap.Error(err))
		}
	}
}

// debounced reports whether this path fired too recently to act on again.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.lastEvent[path]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.lastEvent[path] = now
	return false
}

// Stop shuts the watcher down. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fw, stopCh, doneCh := w.watcher, w.stopCh, w.doneCh
	w.watcher = nil
	w.mu.Unlock()

	close(stopCh)
	_ = fw.Close()
	<-doneCh
}
