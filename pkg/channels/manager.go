package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/crosswire/pkg/relay"
)

// Manager owns the enabled channels and routes outbound sends to the
// adapter for the destination platform. It is the engine's Sender.
type Manager struct {
	log      zerolog.Logger
	channels map[relay.Platform]Channel
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:      log.With().Str("component", "channels").Logger(),
		channels: make(map[relay.Platform]Channel),
	}
}

func (m *Manager) Add(ch Channel) {
	m.channels[ch.Platform()] = ch
}

func (m *Manager) GetChannel(platform relay.Platform) (Channel, bool) {
	ch, ok := m.channels[platform]
	return ch, ok
}

// EnabledPlatforms returns the platforms with a registered channel, sorted
// for stable startup logging.
func (m *Manager) EnabledPlatforms() []string {
	out := make([]string, 0, len(m.channels))
	for platform := range m.channels {
		out = append(out, string(platform))
	}
	sort.Strings(out)
	return out
}

// StartAll starts every channel. A channel that fails to start aborts
// startup; a half-connected relay would silently drop messages.
func (m *Manager) StartAll(ctx context.Context) error {
	for platform, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start %s channel: %w", platform, err)
		}
		m.log.Info().Str("channel", ch.Name()).Msg("channel started")
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	for _, ch := range m.channels {
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			m.log.Warn().Err(err).Str("channel", ch.Name()).Msg("channel stop failed")
		}
	}
}

// Send dispatches on the target platform. Blank content is rejected: a
// zero-ID success would let the engine link nothing while reporting the
// delivery as done. The engine filters empty events before dispatch.
func (m *Manager) Send(ctx context.Context, to relay.Endpoint, content, replyTo string) ([]string, error) {
	ch, ok := m.channels[to.Platform]
	if !ok {
		return nil, fmt.Errorf("no channel for platform %q", to.Platform)
	}
	if !ch.IsRunning() {
		return nil, fmt.Errorf("%s channel is not running", to.Platform)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty content for %s", to)
	}
	return ch.Send(ctx, to, content, replyTo)
}
