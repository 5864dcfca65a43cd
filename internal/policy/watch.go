package policy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the provider whenever a YAML file in its directory changes.
// Events are debounced so editors that emit write bursts trigger one reload.
// Blocks until ctx is cancelled; a provider without a directory returns
// immediately.
func Watch(ctx context.Context, p *Provider, logger *slog.Logger) error {
	if p.Dir() == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(p.Dir()); err != nil {
		return err
	}

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	var fired <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isPolicyFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fired = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("policy watcher error", "error", err)
		case <-fired:
			timer = nil
			fired = nil
			if err := p.Reload(); err != nil {
				logger.Error("policy reload failed, keeping previous policies", "error", err)
				continue
			}
			logger.Info("policies reloaded", "dir", p.Dir())
		}
	}
}

func isPolicyFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
