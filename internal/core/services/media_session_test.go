package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"
	"streamgate/pkg/errors"

	"go.uber.org/zap/zaptest"
)

// fakeTransport is a scriptable media transport: tests push events into it
// and assert on the calls the session adapter makes back.
type fakeTransport struct {
	mu       sync.Mutex
	events   chan domain.TransportEvent
	renewals []string
	left     bool
	joinErr  error
	renewErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan domain.TransportEvent, 16)}
}

func (f *fakeTransport) Join(_ context.Context, _ string, _ domain.ChannelID, _ string, _ domain.SubjectID) error {
	return f.joinErr
}

func (f *fakeTransport) RenewToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renewErr != nil {
		return f.renewErr
	}
	f.renewals = append(f.renewals, token)
	return nil
}

func (f *fakeTransport) Leave() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.left {
		f.left = true
		close(f.events)
	}
	return nil
}

func (f *fakeTransport) Events() <-chan domain.TransportEvent { return f.events }

func (f *fakeTransport) renewedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.renewals...)
}

// stubFactory hands out a single pre-built transport.
type stubFactory struct {
	transport *fakeTransport
	err       error
}

func (f stubFactory) CreateSession(_, _ string) (ports.MediaTransport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transport, nil
}

// recordingListener captures every callback so tests can assert ordering.
type recordingListener struct {
	mu     sync.Mutex
	states []domain.SessionState
	joined []domain.SubjectID
	left   []domain.SubjectID
	errs   []sessionError

	stateCh chan domain.SessionState
}

type sessionError struct {
	category string
	message  string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{stateCh: make(chan domain.SessionState, 16)}
}

func (l *recordingListener) OnStateChange(state domain.SessionState) {
	l.mu.Lock()
	l.states = append(l.states, state)
	l.mu.Unlock()
	l.stateCh <- state
}

func (l *recordingListener) OnViewerJoined(subject domain.SubjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.joined = append(l.joined, subject)
}

func (l *recordingListener) OnViewerLeft(subject domain.SubjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.left = append(l.left, subject)
}

func (l *recordingListener) OnSessionError(category, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, sessionError{category: category, message: message})
}

func (l *recordingListener) waitForState(t *testing.T, want domain.SessionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-l.stateCh:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func (l *recordingListener) lastError() (sessionError, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) == 0 {
		return sessionError{}, false
	}
	return l.errs[len(l.errs)-1], true
}

func newTestSession(t *testing.T, transport *fakeTransport) (*MediaSession, *TokenManager, *fakeSource, *recordingListener) {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	source := &fakeSource{lifetime: time.Hour}
	manager := NewTokenManager(source, logger)
	t.Cleanup(manager.ClearAll)

	listener := newRecordingListener()
	session := NewMediaSession(stubFactory{transport: transport}, manager, "app-123", 42, domain.RolePublisher, listener, logger)
	return session, manager, source, listener
}

func TestMediaSession_JoinAndLeave(t *testing.T) {
	transport := newFakeTransport()
	session, manager, source, listener := newTestSession(t, transport)

	if got := session.State(); got != domain.SessionOffline {
		t.Fatalf("initial state = %s, want %s", got, domain.SessionOffline)
	}

	if err := session.Join(context.Background(), "main-live-stream"); err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	listener.waitForState(t, domain.SessionConnecting)

	if source.requestCount() != 1 {
		t.Errorf("join issued %d token requests, want 1", source.requestCount())
	}

	// A second Join while active is rejected.
	if err := session.Join(context.Background(), "other"); err != domain.ErrSessionActive {
		t.Errorf("Join() while active = %v, want ErrSessionActive", err)
	}

	if err := session.Leave(); err != nil {
		t.Fatalf("Leave() unexpected error: %v", err)
	}
	if got := session.State(); got != domain.SessionOffline {
		t.Errorf("state after Leave() = %s, want %s", got, domain.SessionOffline)
	}

	// Leave evicted this triple's cache entry.
	if cred := manager.GetToken("main-live-stream", 42, domain.RolePublisher); cred != nil {
		t.Error("credential still cached after Leave(), want evicted")
	}
}

func TestMediaSession_JoinUsesCachedCredential(t *testing.T) {
	transport := newFakeTransport()
	session, manager, source, listener := newTestSession(t, transport)

	// Warm the cache for the exact triple the session joins with.
	if _, err := manager.RequestToken(context.Background(), domain.TokenRequest{
		Channel: "main-live-stream", Subject: 42, Role: domain.RolePublisher,
	}); err != nil {
		t.Fatalf("RequestToken() unexpected error: %v", err)
	}

	if err := session.Join(context.Background(), "main-live-stream"); err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	listener.waitForState(t, domain.SessionConnecting)
	defer session.Leave()

	if source.requestCount() != 1 {
		t.Errorf("source saw %d requests, want 1 (cached credential reused)", source.requestCount())
	}
}

func TestMediaSession_JoinIssuanceFailure(t *testing.T) {
	transport := newFakeTransport()
	session, _, source, listener := newTestSession(t, transport)
	source.setFail(true)

	err := session.Join(context.Background(), "main-live-stream")
	if err == nil {
		t.Fatal("Join() succeeded with a failing token source")
	}
	if got := session.State(); got != domain.SessionOffline {
		t.Errorf("state = %s after failed join, want %s", got, domain.SessionOffline)
	}
	if last, ok := listener.lastError(); !ok || last.category != string(errors.CategoryTransient) {
		t.Errorf("listener error = %+v, want category %s", last, errors.CategoryTransient)
	}
}

func TestMediaSession_InPlaceRenewal(t *testing.T) {
	transport := newFakeTransport()
	session, _, source, listener := newTestSession(t, transport)

	if err := session.Join(context.Background(), "main-live-stream"); err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	listener.waitForState(t, domain.SessionConnecting)
	defer session.Leave()

	transport.events <- domain.TransportEvent{Type: domain.EventTokenWillExpire}

	deadline := time.After(2 * time.Second)
	for len(transport.renewedTokens()) == 0 {
		select {
		case <-deadline:
			t.Fatal("transport never received the renewed token")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if source.requestCount() != 2 {
		t.Errorf("source saw %d requests, want 2 (join + in-place renewal)", source.requestCount())
	}
	// The session stays in its current state; renewal is invisible.
	if got := session.State(); got != domain.SessionConnecting {
		t.Errorf("state after in-place renewal = %s, want %s", got, domain.SessionConnecting)
	}
}

func TestMediaSession_RenewalRefreshFailure(t *testing.T) {
	transport := newFakeTransport()
	session, _, source, listener := newTestSession(t, transport)

	if err := session.Join(context.Background(), "main-live-stream"); err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	listener.waitForState(t, domain.SessionConnecting)
	defer session.Leave()

	source.setFail(true)
	transport.events <- domain.TransportEvent{Type: domain.EventTokenWillExpire}

	listener.waitForState(t, domain.SessionCredentialExpired)
}

func TestMediaSession_TokenExpired(t *testing.T) {
	transport := newFakeTransport()
	session, _, _, listener := newTestSession(t, transport)

	if err := session.Join(context.Background(), "main-live-stream"); err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	listener.waitForState(t, domain.SessionConnecting)
	defer session.Leave()

	transport.events <- domain.TransportEvent{Type: domain.EventTokenExpired}
	listener.waitForState(t, domain.SessionCredentialExpired)

	if last, ok := listener.lastError(); !ok || last.category != string(errors.CategoryExpired) {
		t.Errorf("listener error = %+v, want category %s", last, errors.CategoryExpired)
	}

	// Terminal until an explicit Leave: later events must not move the state.
	transport.events <- domain.TransportEvent{Type: domain.EventUserPublished, Subject: 7}
	time.Sleep(50 * time.Millisecond)
	if got := session.State(); got != domain.SessionCredentialExpired {
		t.Errorf("state = %s, credential_expired must be terminal until Leave", got)
	}
}

func TestMediaSession_ExceptionMapping(t *testing.T) {
	tests := []struct {
		name      string
		event     domain.TransportEvent
		wantState domain.SessionState
		wantCat   errors.Category
	}{
		{
			name:      "authorization exception",
			event:     domain.TransportEvent{Type: domain.EventException, Code: domain.ExceptionInvalidToken, Message: "invalid token"},
			wantState: domain.SessionCredentialExpired,
			wantCat:   errors.CategoryExpired,
		},
		{
			name:      "generic exception",
			event:     domain.TransportEvent{Type: domain.EventException, Code: "ICE_FAILED", Message: "ice failed"},
			wantState: domain.SessionError,
			wantCat:   errors.CategoryTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			session, _, _, listener := newTestSession(t, transport)

			if err := session.Join(context.Background(), "main-live-stream"); err != nil {
				t.Fatalf("Join() unexpected error: %v", err)
			}
			listener.waitForState(t, domain.SessionConnecting)
			defer session.Leave()

			transport.events <- tt.event
			listener.waitForState(t, tt.wantState)

			if last, ok := listener.lastError(); !ok || last.category != string(tt.wantCat) {
				t.Errorf("listener error = %+v, want category %s", last, tt.wantCat)
			}
		})
	}
}

func TestMediaSession_ViewerPresence(t *testing.T) {
	transport := newFakeTransport()
	session, _, _, listener := newTestSession(t, transport)

	if err := session.Join(context.Background(), "main-live-stream"); err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	listener.waitForState(t, domain.SessionConnecting)

	transport.events <- domain.TransportEvent{Type: domain.EventUserPublished, Subject: 7}
	listener.waitForState(t, domain.SessionLive)

	transport.events <- domain.TransportEvent{Type: domain.EventUserUnpublished, Subject: 7}
	transport.events <- domain.TransportEvent{Type: domain.EventUserLeft, Subject: 7}

	session.Leave()

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.joined) != 1 || listener.joined[0] != 7 {
		t.Errorf("joined = %v, want [7]", listener.joined)
	}
	if len(listener.left) != 1 || listener.left[0] != 7 {
		t.Errorf("left = %v, want [7]", listener.left)
	}
}

func TestMediaSession_RenewalFailureHookForwarded(t *testing.T) {
	transport := newFakeTransport()
	session, _, _, listener := newTestSession(t, transport)

	if err := session.Join(context.Background(), "main-live-stream"); err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	listener.waitForState(t, domain.SessionConnecting)
	defer session.Leave()

	// Matching triple surfaces; a foreign triple is ignored.
	session.HandleRenewalFailure(domain.TokenRequest{
		Channel: "main-live-stream", Subject: 42, Role: domain.RolePublisher,
	}, errors.NewNetworkFailureError(context.DeadlineExceeded))
	if last, ok := listener.lastError(); !ok || last.category != string(errors.CategoryTransient) {
		t.Errorf("listener error = %+v, want a transient failure", last)
	}

	listener.mu.Lock()
	before := len(listener.errs)
	listener.mu.Unlock()
	session.HandleRenewalFailure(domain.TokenRequest{
		Channel: "some-other-channel", Subject: 42, Role: domain.RolePublisher,
	}, errors.NewNetworkFailureError(context.DeadlineExceeded))

	listener.mu.Lock()
	after := len(listener.errs)
	listener.mu.Unlock()
	if after != before {
		t.Error("renewal failure for a foreign triple must not reach the listener")
	}
}

func TestMediaSession_LeaveDuringInFlightRenewal(t *testing.T) {
	transport := newFakeTransport()
	session, manager, source, listener := newTestSession(t, transport)

	if err := session.Join(context.Background(), "main-live-stream"); err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	listener.waitForState(t, domain.SessionConnecting)

	// Stall the next issuance so the refresh triggered below is still in
	// flight when Leave runs.
	gate := make(chan struct{})
	source.setGate(gate)
	transport.events <- domain.TransportEvent{Type: domain.EventTokenWillExpire}

	deadline := time.After(2 * time.Second)
	for source.requestCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the refresh to start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	leaveDone := make(chan struct{})
	go func() {
		session.Leave()
		close(leaveDone)
	}()

	// Leave must drain the event loop before evicting, so it cannot finish
	// while the refresh is stalled.
	select {
	case <-leaveDone:
		t.Fatal("Leave() returned while a renewal was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)
	select {
	case <-leaveDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Leave() did not complete after the refresh finished")
	}

	// The late refresh must not survive teardown as a cached entry.
	if cred := manager.GetToken("main-live-stream", 42, domain.RolePublisher); cred != nil {
		t.Errorf("GetToken() after Leave() = %v, want nil", cred)
	}
	if got := session.State(); got != domain.SessionOffline {
		t.Errorf("state after Leave() = %s, want %s", got, domain.SessionOffline)
	}
	// A renewal interrupted by a deliberate Leave is not an error.
	if last, ok := listener.lastError(); ok {
		t.Errorf("listener error = %+v, want none", last)
	}
}
