// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/shaderlive"
)

// Watcher turns saves of one WGSL file into updateShader messages.
//
// The parent directory is watched rather than the file itself so editors
// that save by writing a temporary file and renaming it are still seen.
//
// A single save usually raises several events (truncate, write, chmod,
// rename). Each event rereads the file and contents identical to the last
// message are dropped, so one save yields one revision. A save that leaves
// the text unchanged therefore sends nothing.
type Watcher struct {
	path    string
	handler Handler
	last    string
	sent    bool
}

// NewWatcher returns a Watcher for path.
func NewWatcher(path string, h Handler) *Watcher {
	return &Watcher{path: path, handler: h}
}

// Run sends the current contents, then every changed version, until ctx
// is cancelled. Unchanged contents are not resent.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("transport: watch %s: %w", w.path, err)
	}
	dir, name := filepath.Split(abs)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("transport: watch %s: %w", w.path, err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("transport: watch %s: %w", dir, err)
	}

	if err := w.send(abs); err != nil {
		return err
	}
	log := shaderlive.Logger()
	log.Info("transport: watching", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := w.send(abs); err != nil {
				// The file may be mid-rename; the next event retries.
				log.Debug("transport: read failed", "path", abs, "err", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("transport: watcher error", "err", err)
		}
	}
}

func (w *Watcher) send(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("transport: read %s: %w", path, err)
	}
	code, err := DecodeSource(data)
	if err != nil {
		return err
	}
	if w.sent && code == w.last {
		return nil
	}
	w.last, w.sent = code, true
	w.handler.HandleMessage(UpdateShader(code))
	return nil
}
