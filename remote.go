package zealtime

import (
	"context"

	"github.com/livefir/zealtime/internal/remote"
)

// Client is a running remote sync connection.
type Client = remote.Client

// Connect opens a sync connection to url and keeps it open until ctx is
// done, reconnecting after the configured delay whenever it closes. Each
// {"z":"set","variables":{...}} message it receives is applied with
// ApplyVariables.
func (e *Engine) Connect(ctx context.Context, url string) *Client {
	opts := []remote.Option{
		remote.WithDelay(e.config.ReconnectDelay),
		remote.WithClock(e.config.Clock),
		remote.WithLogger(e.config.Logger),
		remote.WithMetrics(e.config.Metrics),
	}
	if e.config.Dialer != nil {
		opts = append(opts, remote.WithDialer(e.config.Dialer))
	}
	e.config.Logger.Printf("zealtime: connecting to %s", url)
	return remote.New(ctx, url, e, opts...)
}
