package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/crosswire/pkg/linkstore"
	"github.com/tinyland-inc/crosswire/pkg/relay"
	"github.com/tinyland-inc/crosswire/pkg/storage"
)

func newTestLinks(t *testing.T) *linkstore.Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return linkstore.New(db)
}

func record(t *testing.T, links *linkstore.Store, messageID string) {
	t.Helper()
	_, err := links.Record(context.Background(), "gaming",
		relay.MessageRef{
			Endpoint:  relay.Endpoint{Platform: relay.PlatformDiscord, ChannelID: "C1"},
			MessageID: messageID,
		},
		nil,
	)
	require.NoError(t, err)
}

func TestSweep_DeletesOnlyExpired(t *testing.T) {
	links := newTestLinks(t)
	record(t, links, "m1")

	sweeper := NewSweeper(links, "* * * * *", 24*time.Hour, zerolog.Nop())

	// The record was just written; a 24h max age keeps it.
	sweeper.Sweep(context.Background(), time.Now())
	_, err := links.Resolve(context.Background(),
		relay.Endpoint{Platform: relay.PlatformDiscord, ChannelID: "C1"}, "m1")
	assert.NoError(t, err)

	// Sweeping as if two days have passed removes it.
	sweeper.Sweep(context.Background(), time.Now().Add(48*time.Hour))
	_, err = links.Resolve(context.Background(),
		relay.Endpoint{Platform: relay.PlatformDiscord, ChannelID: "C1"}, "m1")
	assert.ErrorIs(t, err, linkstore.ErrNotFound)
}

func TestRun_InvalidScheduleReturns(t *testing.T) {
	links := newTestLinks(t)
	sweeper := NewSweeper(links, "not a schedule", 24*time.Hour, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		sweeper.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run should return immediately on an invalid schedule")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	links := newTestLinks(t)
	sweeper := NewSweeper(links, "* * * * *", 24*time.Hour, zerolog.Nop())
	sweeper.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run should stop when the context is canceled")
	}
}
