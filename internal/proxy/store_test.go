package proxy_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/modeldeck/internal/domain"
	"github.com/waabox/modeldeck/internal/proxy"
)

func session(id string, createdAt time.Time, expiresIn int) domain.DeviceFlowSession {
	return domain.DeviceFlowSession{SessionID: id, DeviceCode: "dev_" + id, ExpiresIn: expiresIn, Interval: 5, CreatedAt: createdAt}
}

func TestStore_GetReturnsExpiredSessionUntilSwept(t *testing.T) {
	clock := newFakeClock()
	store := proxy.NewStore(0, nil, zerolog.Nop())
	store.Put(session("a", clock.Now(), 60))

	clock.Advance(2 * time.Minute)

	_, ok := store.Get("a")
	assert.True(t, ok, "expiry is decided by the caller, not by the table")

	assert.Equal(t, 1, store.Sweep(clock.Now()))
	_, ok = store.Get("a")
	assert.False(t, ok)
}

func TestStore_Capacity(t *testing.T) {
	now := newFakeClock().Now()
	store := proxy.NewStore(2, nil, zerolog.Nop())
	store.Put(session("a", now, 900))
	store.Put(session("b", now, 900))
	store.Put(session("c", now, 900))

	assert.Equal(t, 2, store.Len())
	_, ok := store.Get("c")
	assert.True(t, ok)
}

func TestStore_Metrics(t *testing.T) {
	clock := newFakeClock()
	metrics := proxy.NewMetrics()
	store := proxy.NewStore(0, metrics, zerolog.Nop())

	store.Put(session("a", clock.Now(), 60))
	store.Put(session("b", clock.Now(), 900))
	clock.Advance(2 * time.Minute)
	require.Equal(t, 1, store.Sweep(clock.Now()))

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	seen := 0
	for _, mf := range families {
		switch mf.GetName() {
		case "modeldeck_device_sessions":
			seen++
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetGauge().GetValue())
		case "modeldeck_device_sessions_swept_total":
			seen++
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.Equal(t, 2, seen)
}

func TestStore_RunSweeperStopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	store := proxy.NewStore(0, nil, zerolog.Nop())
	store.Put(session("a", clock.Now().Add(-time.Hour), 60))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx, 5*time.Millisecond, clock.Now)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
