// Package engine orchestrates one relay per inbound event: resolve the
// bridge, compute fan-out targets, translate the reply target, send, and
// link the delivered copies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/crosswire/pkg/linkstore"
	"github.com/tinyland-inc/crosswire/pkg/registry"
	"github.com/tinyland-inc/crosswire/pkg/relay"
)

// State is the terminal state of one relay attempt.
type State string

const (
	// StateLinked means at least one destination send succeeded and was
	// recorded in the link store.
	StateLinked State = "linked"
	// StateSkipped means the event required no relay (unregistered
	// endpoint, no fan-out targets, empty content, or an already-relayed
	// source).
	StateSkipped State = "skipped"
	// StateFailed means every destination send failed.
	StateFailed State = "failed"
)

// Sender delivers content to one endpoint. Implemented by the channel
// manager, which dispatches to the adapter for the endpoint's platform.
// replyTo, when non-empty, is a native message ID in the destination
// endpoint. Platform limits may force the content to be split; Send
// returns the native IDs of every message actually posted, in order.
type Sender interface {
	Send(ctx context.Context, to relay.Endpoint, content, replyTo string) ([]string, error)
}

// Delivery is the per-destination outcome of one relay.
type Delivery struct {
	Target     relay.Endpoint
	MessageIDs []string
	Err        error
}

// Result reports what one inbound event turned into.
type Result struct {
	EventID    string
	State      State
	Bridge     string
	Deliveries []Delivery
}

// Succeeded counts deliveries that completed.
func (r *Result) Succeeded() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// Engine owns no state of its own; the registry and link store are
// injected at construction.
type Engine struct {
	log      zerolog.Logger
	registry *registry.Registry
	links    *linkstore.Store
	sender   Sender
	inflight sync.WaitGroup
}

func New(reg *registry.Registry, links *linkstore.Store, sender Sender, log zerolog.Logger) *Engine {
	return &Engine{
		log:      log.With().Str("component", "relay").Logger(),
		registry: reg,
		links:    links,
		sender:   sender,
	}
}

// Dispatch runs Relay on its own goroutine and logs the outcome. Adapters
// call this from their event handlers so inbound events from every
// platform are processed concurrently.
func (e *Engine) Dispatch(ctx context.Context, msg relay.InboundMessage) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if _, err := e.Relay(ctx, msg); err != nil {
			e.log.Error().Err(err).Str("source", msg.Source.String()).Msg("relay failed")
		}
	}()
}

// Drain blocks until every dispatched relay has finished. Called on
// shutdown so a send the remote side already accepted is never left
// unlinked.
func (e *Engine) Drain() {
	e.inflight.Wait()
}

// Relay processes one inbound event to a terminal state. The returned
// error is non-nil only for storage failures; send failures are reported
// per destination inside the Result.
func (e *Engine) Relay(ctx context.Context, msg relay.InboundMessage) (*Result, error) {
	res := &Result{EventID: uuid.NewString(), State: StateSkipped}
	log := e.log.With().
		Str("event_id", res.EventID).
		Str("source", msg.Source.String()).
		Logger()

	if strings.TrimSpace(msg.Content) == "" {
		log.Debug().Msg("empty content, skipping")
		return res, nil
	}

	bridge, err := e.registry.BridgeFor(ctx, msg.Source.Endpoint)
	if errors.Is(err, registry.ErrNotFound) {
		log.Debug().Msg("endpoint not in any bridge, skipping")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("resolve bridge: %w", err)
	}
	res.Bridge = bridge

	targets, err := e.registry.EndpointsFor(ctx, bridge, msg.Source.Platform)
	if err != nil {
		return res, fmt.Errorf("resolve targets: %w", err)
	}
	if len(targets) == 0 {
		log.Debug().Str("bridge", bridge).Msg("bridge has no fan-out targets, skipping")
		return res, nil
	}

	replyRecord := e.resolveReply(ctx, log, msg)

	// Sends run concurrently; sends must be allowed to finish even when
	// the inbound context is canceled mid-flight, since the remote side
	// may already have accepted the message.
	sendCtx := context.WithoutCancel(ctx)
	res.Deliveries = make([]Delivery, len(targets))
	type outcome struct {
		idx int
		ids []string
		err error
	}
	outcomes := make(chan outcome, len(targets))
	for i, target := range targets {
		res.Deliveries[i].Target = target
		go func(idx int, target relay.Endpoint) {
			replyTo := ""
			if replyRecord != nil {
				replyTo, _ = replyRecord.CounterpartFor(target)
			}
			ids, err := e.sender.Send(sendCtx, target, msg.Content, replyTo)
			outcomes <- outcome{idx: idx, ids: ids, err: err}
		}(i, target)
	}

	// Link writes for this source message are serialized by collecting
	// outcomes on this one goroutine, in completion order.
	var rec *linkstore.MessageRecord
	var linkErr error
	duplicate := false
	for range targets {
		oc := <-outcomes
		d := &res.Deliveries[oc.idx]
		d.MessageIDs, d.Err = oc.ids, oc.err
		if oc.err != nil {
			log.Warn().Err(oc.err).Str("target", d.Target.String()).Msg("destination send failed")
			continue
		}
		if duplicate || linkErr != nil {
			continue
		}
		for _, id := range oc.ids {
			dest := relay.MessageRef{Endpoint: d.Target, MessageID: id}
			if rec == nil {
				rec, linkErr = e.links.Record(sendCtx, bridge, msg.Source, []relay.MessageRef{dest})
				if errors.Is(linkErr, linkstore.ErrDuplicateSource) {
					log.Warn().Msg("source already relayed, not linking again")
					duplicate, linkErr = true, nil
					break
				}
				continue
			}
			if linkErr = e.links.AppendDestination(sendCtx, rec.ID, dest); linkErr != nil {
				break
			}
		}
	}
	if linkErr != nil {
		res.State = StateFailed
		return res, fmt.Errorf("link destinations: %w", linkErr)
	}

	if res.Succeeded() == 0 {
		res.State = StateFailed
		log.Error().Str("bridge", bridge).Int("targets", len(targets)).Msg("relay failed for every destination")
		return res, nil
	}
	res.State = StateLinked
	log.Info().
		Str("bridge", bridge).
		Int("delivered", res.Succeeded()).
		Int("targets", len(targets)).
		Msg("message relayed")
	return res, nil
}

// resolveReply translates the inbound reply target into a message record,
// or nil when the message is not a reply or the target was never relayed.
// Missing targets degrade to a plain send rather than failing the relay.
func (e *Engine) resolveReply(ctx context.Context, log zerolog.Logger, msg relay.InboundMessage) *linkstore.MessageRecord {
	if msg.ReplyTo == "" {
		return nil
	}
	rec, err := e.links.Resolve(ctx, msg.Source.Endpoint, msg.ReplyTo)
	if errors.Is(err, linkstore.ErrNotFound) {
		log.Debug().Str("reply_to", msg.ReplyTo).Msg("reply target unknown, sending as plain message")
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Str("reply_to", msg.ReplyTo).Msg("reply lookup failed, sending as plain message")
		return nil
	}
	return rec
}
