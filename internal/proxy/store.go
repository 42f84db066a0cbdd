package proxy

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/waabox/modeldeck/internal/domain"
)

// Store is the proxy's in-memory table of in-flight device-flow sessions.
// Items never expire on their own: expiry is computed from each session's
// CreatedAt and ExpiresIn against an injected clock, so an expired session
// is still visible to Poll and can be reported as expired rather than missing.
type Store struct {
	cache   *ttlcache.Cache[string, domain.DeviceFlowSession]
	metrics *Metrics
	log     zerolog.Logger
}

// NewStore creates a Store holding at most maxSessions entries.
// When the table is full the oldest session is evicted. A zero maxSessions means unbounded.
func NewStore(maxSessions uint64, metrics *Metrics, log zerolog.Logger) *Store {
	opts := []ttlcache.Option[string, domain.DeviceFlowSession]{
		ttlcache.WithTTL[string, domain.DeviceFlowSession](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, domain.DeviceFlowSession](),
	}
	if maxSessions > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, domain.DeviceFlowSession](maxSessions))
	}
	s := &Store{
		cache:   ttlcache.New(opts...),
		metrics: metrics,
		log:     log,
	}
	s.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, domain.DeviceFlowSession]) {
		if reason == ttlcache.EvictionReasonCapacityReached {
			s.log.Warn().Str("session_id", item.Key()).Msg("device session evicted, table full")
		}
	})
	return s
}

// Put stores a session under its SessionID.
func (s *Store) Put(sess domain.DeviceFlowSession) {
	s.cache.Set(sess.SessionID, sess, ttlcache.NoTTL)
	s.metrics.setSessions(s.cache.Len())
}

// Get returns the session for id, if present.
func (s *Store) Get(id string) (domain.DeviceFlowSession, bool) {
	item := s.cache.Get(id)
	if item == nil {
		return domain.DeviceFlowSession{}, false
	}
	return item.Value(), true
}

// Delete removes the session for id. Deleting an absent id is a no-op.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
	s.metrics.setSessions(s.cache.Len())
}

// Len returns the number of sessions currently held.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Sweep deletes every session whose age exceeds its own lifetime at now
// and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	var expired []string
	s.cache.Range(func(item *ttlcache.Item[string, domain.DeviceFlowSession]) bool {
		if item.Value().Expired(now) {
			expired = append(expired, item.Key())
		}
		return true
	})
	for _, id := range expired {
		s.cache.Delete(id)
	}
	s.metrics.addSwept(len(expired))
	s.metrics.setSessions(s.cache.Len())
	return len(expired)
}

// RunSweeper sweeps the store every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(now()); n > 0 {
				s.log.Info().Int("removed", n).Int("remaining", s.Len()).Msg("swept expired device sessions")
			}
		}
	}
}
