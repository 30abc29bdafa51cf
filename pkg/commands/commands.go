// Package commands implements the bridge management commands exposed on
// every platform: here, unhere and bridges. Adapters parse their native
// command surface (slash commands, bot commands) and delegate here, so the
// registry semantics and acknowledgement wording stay identical across
// platforms.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/crosswire/pkg/registry"
	"github.com/tinyland-inc/crosswire/pkg/relay"
)

// DefaultBridgeName is used when the user supplies no bridge name.
const DefaultBridgeName = "default"

const maxBridgeNameLen = 64

// NormalizeBridgeName trims the user-supplied name, falls back to the
// default when empty and caps the length.
func NormalizeBridgeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultBridgeName
	}
	if len(name) > maxBridgeNameLen {
		return name[:maxBridgeNameLen]
	}
	return name
}

// Handler executes bridge commands against the registry and produces the
// user-facing acknowledgement text.
type Handler struct {
	log zerolog.Logger
	reg *registry.Registry
}

func NewHandler(reg *registry.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		log: log.With().Str("component", "commands").Logger(),
		reg: reg,
	}
}

// Here registers the endpoint into the named bridge.
func (h *Handler) Here(ctx context.Context, bridgeName string, ep relay.Endpoint) string {
	bridgeName = NormalizeBridgeName(bridgeName)
	added, err := h.reg.Register(ctx, bridgeName, ep)
	switch {
	case errors.Is(err, registry.ErrEndpointBridged):
		current, lookupErr := h.reg.BridgeFor(ctx, ep)
		if lookupErr != nil {
			current = "another bridge"
		}
		return fmt.Sprintf("This channel already belongs to bridge `%s`. Run unhere there first.", current)
	case err != nil:
		h.log.Error().Err(err).Str("endpoint", ep.String()).Msg("register failed")
		return "Registration failed, try again later."
	case added:
		h.log.Info().Str("bridge", bridgeName).Str("endpoint", ep.String()).Msg("endpoint registered")
		return fmt.Sprintf("Added this channel to bridge `%s`.", bridgeName)
	default:
		return fmt.Sprintf("This channel is already in bridge `%s`.", bridgeName)
	}
}

// Unhere removes the endpoint from the named bridge.
func (h *Handler) Unhere(ctx context.Context, bridgeName string, ep relay.Endpoint) string {
	bridgeName = NormalizeBridgeName(bridgeName)
	err := h.reg.Unregister(ctx, bridgeName, ep)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return fmt.Sprintf("This channel is not in bridge `%s`.", bridgeName)
	case err != nil:
		h.log.Error().Err(err).Str("endpoint", ep.String()).Msg("unregister failed")
		return "Removal failed, try again later."
	default:
		h.log.Info().Str("bridge", bridgeName).Str("endpoint", ep.String()).Msg("endpoint unregistered")
		return fmt.Sprintf("Removed this channel from bridge `%s`.", bridgeName)
	}
}

// Bridges formats the configured bridges, one line per bridge with
// per-platform endpoint counts.
func (h *Handler) Bridges(ctx context.Context) string {
	bridges, err := h.reg.ListBridges(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("list bridges failed")
		return "Listing failed, try again later."
	}
	if len(bridges) == 0 {
		return "No bridges configured."
	}

	var b strings.Builder
	for _, bridge := range bridges {
		counts := make(map[relay.Platform]int)
		for _, ep := range bridge.Endpoints {
			counts[ep.Platform]++
		}
		b.WriteString("- ")
		b.WriteString(bridge.Name)
		b.WriteString(":")
		for _, platform := range relay.Platforms {
			if counts[platform] == 0 {
				continue
			}
			fmt.Fprintf(&b, " %s=%d", platform, counts[platform])
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
