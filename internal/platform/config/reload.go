package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// defaultDebounce is how long the reloader waits after the last write before
// re-reading the policy file.
const defaultDebounce = 500 * time.Millisecond

// PolicyReloader watches a selection policy file and hands every successfully
// parsed version to onChange. Parse failures keep the previous policy.
type PolicyReloader struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(SelectionConfig)
	log      zerolog.Logger
	debounce time.Duration
}

// NewPolicyReloader creates a watcher for path.
func NewPolicyReloader(path string, onChange func(SelectionConfig), log zerolog.Logger) (*PolicyReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	return &PolicyReloader{
		watcher:  watcher,
		path:     path,
		onChange: onChange,
		log:      log,
		debounce: defaultDebounce,
	}, nil
}

// Run blocks until ctx is cancelled.
func (r *PolicyReloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(r.debounce, r.reload)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn().Err(err).Str("path", r.path).Msg("Selection policy watcher error")
		}
	}
}

func (r *PolicyReloader) reload() {
	sel, err := LoadSelectionPolicy(r.path)
	if err != nil {
		r.log.Error().Err(err).Str("path", r.path).Msg("Selection policy reload failed; keeping previous policy")
		return
	}
	r.onChange(sel)
	r.log.Info().
		Str("path", r.path).
		Int64("escalation_threshold", sel.EscalationThreshold).
		Int("top_tier_level", sel.TopTierLevel).
		Bool("limit_fallback", sel.LimitFallback).
		Msg("Selection policy reloaded")
}
