// Package registry persists the mapping of bridge names to their member
// endpoints. Every mutating call commits before returning, so an
// acknowledged registration survives a crash.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tinyland-inc/crosswire/pkg/relay"
)

// ErrNotFound is returned when an endpoint is not registered where the
// caller expected it. It is a normal outcome, not a fault.
var ErrNotFound = errors.New("endpoint not registered")

// ErrEndpointBridged is returned by Register when the endpoint already
// belongs to a different bridge. One endpoint is a member of at most one
// bridge; allowing more would duplicate delivery on fan-out.
var ErrEndpointBridged = errors.New("endpoint already belongs to another bridge")

// Bridge is a named group of endpoints across platforms.
type Bridge struct {
	Name      string
	Endpoints []relay.Endpoint
}

// Registry is the SQLite-backed bridge registry.
type Registry struct {
	db *sql.DB
}

func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Register adds the endpoint to the named bridge. Registering an endpoint
// that is already in that bridge is a no-op; the returned bool reports
// whether anything changed.
func (r *Registry) Register(ctx context.Context, bridge string, ep relay.Endpoint) (bool, error) {
	if !ep.Platform.Valid() {
		return false, fmt.Errorf("unknown platform %q", ep.Platform)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin register: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT bridge FROM bridge_endpoints WHERE platform = ? AND channel_id = ?`,
		string(ep.Platform), ep.ChannelID,
	).Scan(&current)
	switch {
	case err == nil:
		if current == bridge {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s is in %q", ErrEndpointBridged, ep, current)
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return false, fmt.Errorf("lookup endpoint: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bridge_endpoints (bridge, platform, channel_id, created_at) VALUES (?, ?, ?, ?)`,
		bridge, string(ep.Platform), ep.ChannelID, time.Now().UTC().UnixMilli(),
	); err != nil {
		return false, fmt.Errorf("insert endpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit register: %w", err)
	}
	return true, nil
}

// Unregister removes the endpoint from the named bridge. Returns
// ErrNotFound when the endpoint was never registered to that bridge.
func (r *Registry) Unregister(ctx context.Context, bridge string, ep relay.Endpoint) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM bridge_endpoints WHERE bridge = ? AND platform = ? AND channel_id = ?`,
		bridge, string(ep.Platform), ep.ChannelID,
	)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// BridgeFor returns the name of the bridge the endpoint belongs to, or
// ErrNotFound. At most one bridge can match (schema-level invariant).
func (r *Registry) BridgeFor(ctx context.Context, ep relay.Endpoint) (string, error) {
	var bridge string
	err := r.db.QueryRowContext(ctx,
		`SELECT bridge FROM bridge_endpoints WHERE platform = ? AND channel_id = ?`,
		string(ep.Platform), ep.ChannelID,
	).Scan(&bridge)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup bridge: %w", err)
	}
	return bridge, nil
}

// EndpointsFor returns every endpoint of the bridge that is NOT on the
// given platform, i.e. the fan-out targets for a message arriving on that
// platform. Ordering is deterministic (platform, then channel).
func (r *Registry) EndpointsFor(ctx context.Context, bridge string, excluding relay.Platform) ([]relay.Endpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT platform, channel_id FROM bridge_endpoints
		 WHERE bridge = ? AND platform != ?
		 ORDER BY platform, channel_id`,
		bridge, string(excluding),
	)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []relay.Endpoint
	for rows.Next() {
		var platform, channelID string
		if err := rows.Scan(&platform, &channelID); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, relay.Endpoint{Platform: relay.Platform(platform), ChannelID: channelID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return out, nil
}

// ListBridges returns every bridge with its endpoints, ordered by bridge
// name so listings are reproducible.
func (r *Registry) ListBridges(ctx context.Context) ([]Bridge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bridge, platform, channel_id FROM bridge_endpoints
		 ORDER BY bridge, platform, channel_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list bridges: %w", err)
	}
	defer rows.Close()

	var out []Bridge
	for rows.Next() {
		var name, platform, channelID string
		if err := rows.Scan(&name, &platform, &channelID); err != nil {
			return nil, fmt.Errorf("scan bridge row: %w", err)
		}
		ep := relay.Endpoint{Platform: relay.Platform(platform), ChannelID: channelID}
		if len(out) == 0 || out[len(out)-1].Name != name {
			out = append(out, Bridge{Name: name})
		}
		out[len(out)-1].Endpoints = append(out[len(out)-1].Endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bridges: %w", err)
	}
	return out, nil
}
