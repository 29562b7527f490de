package services

import (
	"context"
	"sync"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"

	"go.uber.org/zap"
)

// RenewalSkew is the safety margin subtracted from a credential's expiry when
// deciding whether it is still usable and when to renew it proactively.
const RenewalSkew = 300 * time.Second

// cacheEntry owns one credential plus its scheduled renewal. Timer callbacks
// compare entry identity, not just the key, so a fired-but-superseded timer
// can never resurrect an evicted entry.
type cacheEntry struct {
	cred  *domain.Credential
	req   domain.TokenRequest
	timer *time.Timer
}

// TokenManager caches credentials keyed by (channel, subject, role) and
// re-requests each one before it expires, so callers never observe an
// interruption. Triples are independent: renewing one never touches another.
type TokenManager struct {
	source ports.TokenSource
	skew   time.Duration
	logger *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]*cacheEntry

	now func() time.Time

	// onRenewalFailure is invoked when a scheduled renewal fails. The timer
	// itself never retries; the next on-demand request observes the stale
	// entry and triggers a fresh one.
	onRenewalFailure func(req domain.TokenRequest, err error)
}

// ManagerOption configures a TokenManager.
type ManagerOption func(*TokenManager)

// WithRenewalSkew overrides the default renewal skew.
func WithRenewalSkew(skew time.Duration) ManagerOption {
	return func(m *TokenManager) { m.skew = skew }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *TokenManager) { m.now = now }
}

// WithRenewalFailureHandler registers a hook for failed scheduled renewals,
// letting the session layer learn about the gap before the transport does.
func WithRenewalFailureHandler(fn func(req domain.TokenRequest, err error)) ManagerOption {
	return func(m *TokenManager) { m.onRenewalFailure = fn }
}

func NewTokenManager(source ports.TokenSource, logger *zap.SugaredLogger, opts ...ManagerOption) *TokenManager {
	m := &TokenManager{
		source:  source,
		skew:    RenewalSkew,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestToken asks the authority for a fresh credential, replaces any cached
// entry for the triple and arms the next renewal. On failure the cache for
// that triple is left untouched and the authority's error is returned as is.
func (m *TokenManager) RequestToken(ctx context.Context, req domain.TokenRequest) (*domain.Credential, error) {
	cred, err := m.source.Issue(ctx, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.store(req, cred)
	m.mu.Unlock()

	return cred, nil
}

// GetToken returns the cached credential for the triple only while it is
// usable with the renewal skew as margin. A stale entry is evicted as a side
// effect of the read; an expired or near-expired credential is never handed
// to a caller.
func (m *TokenManager) GetToken(channel domain.ChannelID, subject domain.SubjectID, role domain.Role) *domain.Credential {
	key := domain.Triple{Channel: channel, Subject: subject, Role: role}.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil
	}

	if !entry.cred.UsableAt(m.now(), m.skew) {
		m.evictLocked(key, entry)
		return nil
	}

	return entry.cred
}

// RefreshToken re-requests a credential for the triple immediately. Used by
// the session layer when the transport signals imminent privilege loss,
// instead of waiting for the internal timer.
func (m *TokenManager) RefreshToken(ctx context.Context, channel domain.ChannelID, subject domain.SubjectID, role domain.Role) (*domain.Credential, error) {
	return m.RequestToken(ctx, domain.TokenRequest{Channel: channel, Subject: subject, Role: role})
}

// Evict removes a single triple's entry and cancels its renewal timer.
func (m *TokenManager) Evict(channel domain.ChannelID, subject domain.SubjectID, role domain.Role) {
	key := domain.Triple{Channel: channel, Subject: subject, Role: role}.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok {
		m.evictLocked(key, entry)
	}
}

// ClearAll cancels every pending renewal and empties the cache. Idempotent.
func (m *TokenManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	m.entries = make(map[string]*cacheEntry)
}

// store replaces the triple's entry and arms its renewal timer. Caller holds
// the lock.
func (m *TokenManager) store(req domain.TokenRequest, cred *domain.Credential) {
	key := req.Triple().Key()

	if old, ok := m.entries[key]; ok && old.timer != nil {
		old.timer.Stop()
	}

	entry := &cacheEntry{cred: cred, req: req}
	m.entries[key] = entry

	delay := time.Duration(cred.ExpiresAt-m.now().Unix())*time.Second - m.skew
	if delay > 0 {
		entry.timer = time.AfterFunc(delay, func() {
			m.renew(key, entry)
		})
	}
	// With a lifetime shorter than the skew no timer is armed: GetToken
	// already treats the entry as expired for planning, forcing an
	// on-demand request on next use.
}

// renew is the timer callback. It re-requests with the identical parameters
// that produced the current entry, replacing it and re-arming the next timer,
// a self-sustaining chain with no caller involvement.
func (m *TokenManager) renew(key string, armed *cacheEntry) {
	m.mu.Lock()
	if m.entries[key] != armed {
		// Superseded or evicted while the timer was in flight.
		m.mu.Unlock()
		return
	}
	req := armed.req
	m.mu.Unlock()

	cred, err := m.source.Issue(context.Background(), req)
	if err != nil {
		m.logger.Warnw("scheduled token renewal failed",
			"channel", req.Channel,
			"uid", req.Subject,
			"role", req.Role,
			"error", err,
		)
		if m.onRenewalFailure != nil {
			m.onRenewalFailure(req, err)
		}
		return
	}

	m.mu.Lock()
	if m.entries[key] == armed {
		m.store(req, cred)
	}
	m.mu.Unlock()
}

func (m *TokenManager) evictLocked(key string, entry *cacheEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(m.entries, key)
}

var _ ports.TokenManager = (*TokenManager)(nil)
