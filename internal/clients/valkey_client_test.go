package clients

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValkey(t *testing.T) (*ValkeyClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts := NewValkeyOptions(mr.Addr(), "", false)
	opts.DisableCache = true
	opts.AlwaysRESP2 = true
	vc, err := NewValkeyClient(opts)
	require.NoError(t, err)
	t.Cleanup(vc.Close)
	return vc, mr
}

func TestCooldownRoundTrip(t *testing.T) {
	vc, mr := newTestValkey(t)
	ctx := context.Background()

	until, err := vc.CooldownUntil(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, until.IsZero())

	end := time.Now().Add(90 * time.Second).Truncate(time.Millisecond)
	require.NoError(t, vc.StartCooldown(ctx, "acct", end))

	got, err := vc.CooldownUntil(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, end.Equal(got))
	assert.True(t, mr.TTL(VALKEY_COOLDOWN_PREFIX+"acct") > 0)

	// a shorter cooldown never shortens the current one
	require.NoError(t, vc.StartCooldown(ctx, "acct", time.Now().Add(time.Second)))
	got, err = vc.CooldownUntil(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, end.Equal(got))

	mr.FastForward(2 * time.Minute)
	got, err = vc.CooldownUntil(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestSeenCache(t *testing.T) {
	vc, mr := newTestValkey(t)
	ctx := context.Background()

	assert.False(t, vc.IsSeen(ctx, "U1", "t3_abc"))
	require.NoError(t, vc.MarkSeen(ctx, "U1", "t3_abc"))
	assert.True(t, vc.IsSeen(ctx, "U1", "t3_abc"))
	assert.False(t, vc.IsSeen(ctx, "U2", "t3_abc"))

	mr.FastForward(VALKEY_SEEN_TTL + time.Second)
	assert.False(t, vc.IsSeen(ctx, "U1", "t3_abc"))
}

func TestConcurrentCooldownsKeepTheLongest(t *testing.T) {
	vc, _ := newTestValkey(t)
	ctx := context.Background()

	base := time.Now().Add(time.Minute).Truncate(time.Millisecond)
	offsets := rand.Perm(24)
	longest := base.Add(23 * time.Second)

	var wg sync.WaitGroup
	for _, off := range offsets {
		wg.Add(1)
		go func(off int) {
			defer wg.Done()
			assert.NoError(t, vc.StartCooldown(ctx, "acct", base.Add(time.Duration(off)*time.Second)))
		}(off)
	}
	wg.Wait()

	got, err := vc.CooldownUntil(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, longest.Equal(got), "got %s want %s", got, longest)
}

func TestExpiredCooldownIsIgnored(t *testing.T) {
	vc, mr := newTestValkey(t)

	require.NoError(t, vc.StartCooldown(context.Background(), "acct", time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists(VALKEY_COOLDOWN_PREFIX+"acct"))
}

func TestRetryStopsWhenContextIsDone(t *testing.T) {
	vc, _ := newTestValkey(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := vc.CooldownUntil(ctx, "acct")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), VALKEY_RETRY_DELAY)
}
