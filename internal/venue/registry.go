// Package venue resolves configured execution venues by name.
package venue

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/venue/binance"
	"github.com/alanyoungcy/hedgebot/internal/venue/paper"
)

// Deps are the shared collaborators handed to venue factories.
type Deps struct {
	// Quotes backs the paper venue.
	Quotes domain.PushFeed
	// Limiter throttles pull quotes; may be nil.
	Limiter domain.RateLimiter
	Logger  *slog.Logger
}

// Factory builds one adapter from its configuration.
type Factory func(cfg config.VenueConfig, deps Deps) (domain.VenueClient, error)

var factories = map[string]Factory{
	"binance": func(cfg config.VenueConfig, deps Deps) (domain.VenueClient, error) {
		var opts []binance.Option
		if deps.Limiter != nil {
			opts = append(opts, binance.WithRateLimiter(deps.Limiter))
		}
		return binance.NewClient(binance.Config{
			Name:       cfg.Name,
			SpotURL:    cfg.SpotURL,
			LinearURL:  cfg.LinearURL,
			InverseURL: cfg.InverseURL,
			APIKey:     cfg.ApiKey,
			APISecret:  cfg.ApiSecret,
			RecvWindow: cfg.RecvWindow,
			PullPerMin: cfg.PullPerMin,
		}, deps.Logger, opts...), nil
	},
	"paper": func(cfg config.VenueConfig, deps Deps) (domain.VenueClient, error) {
		return paper.NewClient(cfg.Name, deps.Quotes, cfg.PaperSlipBp, deps.Logger), nil
	},
}

// Registry maps venue names to adapters.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]domain.VenueClient
}

var _ domain.VenueResolver = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]domain.VenueClient)}
}

// Build creates one adapter per configured venue through the kind lookup
// table.
func Build(cfgs []config.VenueConfig, deps Deps) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range cfgs {
		factory, ok := factories[cfg.Kind]
		if !ok {
			return nil, fmt.Errorf("venue: %s: unknown kind %q: %w", cfg.Name, cfg.Kind, domain.ErrUnknownVenue)
		}
		client, err := factory(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("venue: build %s: %w", cfg.Name, err)
		}
		if err := r.Register(client); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a client under its name.
func (r *Registry) Register(c domain.VenueClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c.Name()]; exists {
		return fmt.Errorf("venue: %s: %w", c.Name(), domain.ErrAlreadyExists)
	}
	r.clients[c.Name()] = c
	return nil
}

// Client implements domain.VenueResolver.
func (r *Registry) Client(name string) (domain.VenueClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("venue: %q: %w", name, domain.ErrUnknownVenue)
	}
	return c, nil
}

// Names returns the registered venue names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
