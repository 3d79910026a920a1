// pkg/logstore/watcher.go
package logstore

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// TamperFunc is invoked when a sealed (non-current) segment file is
// modified or removed out of band. Sealed segments are never touched by
// the writer, so any change is evidence of tampering or external cleanup.
type TamperFunc func(path string, op string)

// TamperWatcher watches the segment directory with fsnotify and reports
// modifications to segments the store no longer owns. Writes to the
// current segment are the store's own appends and are ignored.
type TamperWatcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onTamper TamperFunc
}

// NewTamperWatcher starts watching the store's directory. The callback
// runs on the watcher goroutine and must not block.
func NewTamperWatcher(store *Store, logger zerolog.Logger, onTamper TamperFunc) (*TamperWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(store.Dir()); err != nil {
		watcher.Close()
		return nil, err
	}
	return &TamperWatcher{
		store:    store,
		watcher:  watcher,
		logger:   logger.With().Str("component", "tamper_watcher").Logger(),
		onTamper: onTamper,
	}, nil
}

// Run processes filesystem events until the context is cancelled.
func (tw *TamperWatcher) Run(ctx context.Context) {
	defer tw.watcher.Close()
	for {
		select {
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			tw.handle(event)
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.logger.Error().Err(err).Msg("Watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (tw *TamperWatcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return
	}
	// Creation and appends to the current segment are our own writes.
	// Removals are excluded because the retention sweep deletes sealed
	// segments legitimately.
	if event.Op.Has(fsnotify.Create) || event.Name == tw.store.CurrentSegmentPath() {
		return
	}
	if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Chmod) {
		tw.logger.Warn().
			Str("segment", name).
			Str("op", event.Op.String()).
			Msg("Sealed segment modified out of band")
		if tw.onTamper != nil {
			tw.onTamper(event.Name, event.Op.String())
		}
	}
}
