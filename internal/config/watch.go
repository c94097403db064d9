package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const pollFallbackInterval = 60 * time.Second

// Watch reloads path on change and hands each successfully parsed result to
// apply. fsnotify drives the fast path; a slow mtime poll backstops editors
// and orchestrators that replace the file instead of writing it. A config
// that fails to parse or validate is logged and skipped, keeping the
// previous one in effect.
func Watch(ctx context.Context, path string, log zerolog.Logger, apply func(*Config)) {
	var mu sync.Mutex
	var lastMod time.Time
	if st, err := os.Stat(path); err == nil {
		lastMod = st.ModTime()
	}

	reload := func() {
		st, err := os.Stat(path)
		if err != nil {
			return
		}
		mu.Lock()
		if !st.ModTime().After(lastMod) {
			mu.Unlock()
			return
		}
		lastMod = st.ModTime()
		mu.Unlock()

		cfg, err := Load(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("config reload failed, keeping previous")
			return
		}
		log.Info().Str("path", path).Msg("config reloaded")
		apply(cfg)
	}

	watcher, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Warn().Err(err).Msg("fsnotify unavailable, falling back to polling")
		usePolling = true
	} else if err := watcher.Add(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("cannot watch config file, falling back to polling")
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// Editors truncate then write; let the file settle.
						time.Sleep(100 * time.Millisecond)
						reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Warn().Err(err).Msg("config watcher error")
				}
			}
		}()
	}

	// The mtime check inside reload keeps this from double-applying what
	// fsnotify already picked up.
	go func() {
		ticker := time.NewTicker(pollFallbackInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reload()
			}
		}
	}()
}
