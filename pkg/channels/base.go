package channels

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/crosswire/pkg/relay"
)

// Channel is one platform adapter. It is the only code that talks to a
// live platform API: it receives message events, hands them to the relay
// engine, and delivers outbound sends.
type Channel interface {
	Name() string
	Platform() relay.Platform
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Send delivers content to an endpoint on this channel's platform,
	// optionally as a reply to a native message ID. Returns the native
	// IDs of every message posted (long content is split).
	Send(ctx context.Context, to relay.Endpoint, content, replyTo string) ([]string, error)
	IsRunning() bool
}

type BaseChannel struct {
	log      zerolog.Logger
	name     string
	platform relay.Platform
	running  atomic.Bool
}

func NewBaseChannel(name string, platform relay.Platform, log zerolog.Logger) *BaseChannel {
	return &BaseChannel{
		log:      log.With().Str("channel", name).Logger(),
		name:     name,
		platform: platform,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) Platform() relay.Platform {
	return c.platform
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

func (c *BaseChannel) Log() zerolog.Logger {
	return c.log
}
