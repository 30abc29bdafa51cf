package linkstore

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/crosswire/pkg/relay"
	"github.com/tinyland-inc/crosswire/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func ref(platform relay.Platform, channelID, messageID string) relay.MessageRef {
	return relay.MessageRef{
		Endpoint:  relay.Endpoint{Platform: platform, ChannelID: channelID},
		MessageID: messageID,
	}
}

func TestRecord_DuplicateSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	source := ref(relay.PlatformDiscord, "C1", "m1")

	_, err := store.Record(ctx, "gaming", source, []relay.MessageRef{
		ref(relay.PlatformTelegram, "T1", "100"),
	})
	require.NoError(t, err)

	_, err = store.Record(ctx, "gaming", source, nil)
	assert.ErrorIs(t, err, ErrDuplicateSource)

	// No duplicate record: resolving still finds exactly the first one.
	rec, err := store.Resolve(ctx, source.Endpoint, source.MessageID)
	require.NoError(t, err)
	assert.Len(t, rec.Destinations, 1)
}

func TestResolve_EquivalenceOfReplyTargets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := ref(relay.PlatformDiscord, "C1", "m1")
	d1 := ref(relay.PlatformTelegram, "T1", "100")
	d2 := ref(relay.PlatformTelegram, "T2", "200")

	rec, err := store.Record(ctx, "gaming", source, []relay.MessageRef{d1})
	require.NoError(t, err)
	require.NoError(t, store.AppendDestination(ctx, rec.ID, d2))

	// Resolving via the source and via either destination copy must all
	// land on the same record, hence the same source id.
	for _, probe := range []relay.MessageRef{source, d1, d2} {
		got, err := store.Resolve(ctx, probe.Endpoint, probe.MessageID)
		require.NoError(t, err, "probe %s", probe)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, source, got.Source)
	}
}

func TestCounterpartFor_NormalizesThroughSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := ref(relay.PlatformDiscord, "C1", "m1")
	d1 := ref(relay.PlatformTelegram, "T1", "100")
	d2 := ref(relay.PlatformDiscord, "C2", "m2")

	rec, err := store.Record(ctx, "gaming", source, []relay.MessageRef{d1, d2})
	require.NoError(t, err)

	// A reply observed at the Telegram copy translates back to the true
	// Discord origin, not to another hop.
	got, err := store.Resolve(ctx, d1.Endpoint, d1.MessageID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	id, ok := got.CounterpartFor(source.Endpoint)
	require.True(t, ok)
	assert.Equal(t, "m1", id)

	// Sibling copy in a second Discord channel resolves to that copy.
	id, ok = got.CounterpartFor(d2.Endpoint)
	require.True(t, ok)
	assert.Equal(t, "m2", id)

	// Unknown endpoint has no counterpart.
	_, ok = got.CounterpartFor(relay.Endpoint{Platform: relay.PlatformSlack, ChannelID: "S1"})
	assert.False(t, ok)
}

func TestResolve_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Resolve(context.Background(),
		relay.Endpoint{Platform: relay.PlatformDiscord, ChannelID: "C1"}, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendDestination_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := ref(relay.PlatformDiscord, "C1", "m1")
	rec, err := store.Record(ctx, "gaming", source, nil)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dest := ref(relay.PlatformTelegram, "T"+strconv.Itoa(i), strconv.Itoa(100+i))
			assert.NoError(t, store.AppendDestination(ctx, rec.ID, dest))
		}(i)
	}
	wg.Wait()

	got, err := store.Resolve(ctx, source.Endpoint, source.MessageID)
	require.NoError(t, err)
	assert.Len(t, got.Destinations, n, "no appended destination may be lost")
}

func TestAppendDestination_SameDestIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := ref(relay.PlatformDiscord, "C1", "m1")
	dest := ref(relay.PlatformTelegram, "T1", "100")
	rec, err := store.Record(ctx, "gaming", source, []relay.MessageRef{dest})
	require.NoError(t, err)

	require.NoError(t, store.AppendDestination(ctx, rec.ID, dest))

	got, err := store.Resolve(ctx, source.Endpoint, source.MessageID)
	require.NoError(t, err)
	assert.Len(t, got.Destinations, 1)
}

func TestDeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, "gaming", ref(relay.PlatformDiscord, "C1", "m1"), []relay.MessageRef{
		ref(relay.PlatformTelegram, "T1", "100"),
	})
	require.NoError(t, err)

	deleted, err := store.DeleteOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted, "recent records survive")

	deleted, err = store.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = store.Resolve(ctx, relay.Endpoint{Platform: relay.PlatformDiscord, ChannelID: "C1"}, "m1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Destinations go with their record (cascade).
	_, err = store.Resolve(ctx, relay.Endpoint{Platform: relay.PlatformTelegram, ChannelID: "T1"}, "100")
	assert.ErrorIs(t, err, ErrNotFound)
}
