package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 200 * time.Millisecond

type watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func (w *watcher) stop() error {
	close(w.done)
	return w.fsw.Close()
}

// Watch starts a file watcher that reloads the configuration whenever the
// file changes on disk. Editors that replace the file (rename + create) are
// handled by watching the parent directory.
func (c *Config) Watch() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(c.configPath)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &watcher{fsw: fsw, done: make(chan struct{})}
	c.mu.Lock()
	if c.watcher != nil {
		c.mu.Unlock()
		w.stop()
		return fmt.Errorf("config watcher already running")
	}
	c.watcher = w
	c.mu.Unlock()

	go c.watchLoop(w)
	c.logger.Info("Watching configuration file", zap.String("path", c.configPath))
	return nil
}

func (c *Config) watchLoop(w *watcher) {
	target := filepath.Clean(c.configPath)
	var timer *time.Timer

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := c.Update(); err != nil {
					c.logger.Error("Config hot reload failed, keeping previous configuration", zap.Error(err))
					return
				}
				c.logger.Info("Configuration reloaded")
				c.mu.RLock()
				callbacks := append([]func(){}, c.onReload...)
				c.mu.RUnlock()
				for _, fn := range callbacks {
					fn()
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			c.logger.Error("Config watcher error", zap.Error(err))
		}
	}
}
