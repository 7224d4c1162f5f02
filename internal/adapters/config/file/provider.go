// Package file watches the gateway config file and reloads it on change.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

// DefaultSettle is how long the watcher waits after the last file event
// before reloading.
const DefaultSettle = 250 * time.Millisecond

// Provider loads configuration from a file and keeps the latest snapshot.
type Provider struct {
	path    string
	settle  time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	current *config.Config
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.settle = d
		}
	}
}

// NewProvider creates a file-backed config provider.
func NewProvider(path string, opts ...Option) (*Provider, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	p := &Provider{
		path:   filepath.Clean(path),
		settle: DefaultSettle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Load reads the file and stores the result as the current snapshot.
func (p *Provider) Load(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(p.path)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", p.path, err)
	}
	p.store(cfg)
	p.logger.Info("config loaded", slog.String("path", p.path))
	return cfg, nil
}

// Current returns the last successfully loaded snapshot.
func (p *Provider) Current() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Provider) store(cfg *config.Config) {
	p.mu.Lock()
	p.current = cfg
	p.mu.Unlock()
}

// Watch reloads the file after it changes and passes the new snapshot to
// onChange. The parent directory is watched so replacing the file by rename
// is seen too. Bursts of events within the settle window cause one reload,
// and a file that fails to parse keeps the previous snapshot.
func (p *Provider) Watch(ctx context.Context, onChange func(*config.Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()
	p.logger.Info("watching config file for changes", slog.String("path", p.path))

	go p.loop(ctx, watcher, onChange)
	return nil
}

func (p *Provider) loop(ctx context.Context, watcher *fsnotify.Watcher, onChange func(*config.Config)) {
	defer watcher.Close()

	timer := time.NewTimer(p.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("config watch stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(p.settle)

		case <-timer.C:
			p.reload(onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watch error", slog.String("error", err.Error()))
		}
	}
}

func (p *Provider) reload(onChange func(*config.Config)) {
	cfg, err := config.Load(p.path)
	if err != nil {
		p.logger.Error("failed to reload config",
			slog.String("path", p.path),
			slog.String("error", err.Error()))
		return
	}
	p.store(cfg)
	p.logger.Info("config reloaded", slog.String("path", p.path))
	onChange(cfg)
}

// Close stops watching the file.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	p.watcher = nil
	return err
}
