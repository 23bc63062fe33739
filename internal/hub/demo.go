package hub

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// DefaultDemoInterval is how often DemoFeed publishes.
const DefaultDemoInterval = 500 * time.Millisecond

// DemoFeed publishes a status that follows whether Path exists, a counter
// and a random username.
type DemoFeed struct {
	Path     string
	Interval time.Duration
	Faker    *gofakeit.Faker

	counting int
}

// NewDemoFeed creates a feed watching path. A zero seed picks a random one.
func NewDemoFeed(path string, seed uint64) *DemoFeed {
	return &DemoFeed{
		Path:     path,
		Interval: DefaultDemoInterval,
		Faker:    gofakeit.New(seed),
	}
}

// Status reports the variables for the current state of Path.
func (f *DemoFeed) Status() map[string]any {
	if _, err := os.Stat(f.Path); err != nil {
		return map[string]any{"statusColor": "red", "statusText": "Offline"}
	}
	return map[string]any{"statusColor": "green", "statusText": "Online"}
}

// Tick advances the counter and returns the next variables to publish.
func (f *DemoFeed) Tick() map[string]any {
	f.counting++
	return map[string]any{
		"counting": f.counting,
		"username": f.Faker.Username(),
	}
}

// Run publishes to h until ctx is done.
func (f *DemoFeed) Run(ctx context.Context, h *Hub) error {
	interval := f.Interval
	if interval <= 0 {
		interval = DefaultDemoInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.Set(ctx, f.Status()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := h.Set(ctx, f.Tick()); err != nil {
			return err
		}
	}
}
