package bininfo

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher watches a debug-info directory tree for newly created files,
// letting a failed DWARF lookup be retried once if the missing
// debug-link or build-id companion file shows up mid-trace (SPEC_FULL.md
// §2: "optional watch on debug-info-dir ... bounded, opt-in via
// config"). Unlike the host log-shipping agent's file monitor, this
// watcher drives no ongoing loop — ensureDWARF polls it synchronously,
// once, right before giving up.
type Watcher struct {
	w      *fsnotify.Watcher
	events chan struct{}
	logger *logrus.Logger
}

// NewWatcher starts watching dir non-recursively. The build-id and
// debug-link layouts bininfo looks under are both at most two levels
// deep under dir, but watching every subdirectory up front would be
// unbounded work for a feature that exists purely to shave a retry
// off an already-failed lookup, so only dir itself is watched; a file
// appearing deeper in the tree is observed on the next statedump reset
// instead.
func NewWatcher(dir string, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	watcher := &Watcher{w: fw, events: make(chan struct{}, 1), logger: logger}
	go watcher.pump()
	return watcher, nil
}

func (w *Watcher) pump() {
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				select {
				case w.events <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("bininfo: debug-info-dir watch error")
		}
	}
}

// WaitForCreate blocks until a create/write event is observed under the
// watched directory or timeout elapses, returning whether one arrived.
func (w *Watcher) WaitForCreate(timeout time.Duration) bool {
	select {
	case <-w.events:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.w.Close()
}
