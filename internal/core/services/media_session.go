package services

import (
	"context"
	"sync"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"
	"streamgate/pkg/errors"

	"go.uber.org/zap"
)

// MediaSession owns one media-session handle. It asks the token manager for a
// credential before joining and again when the transport reports that the
// current credential is about to lose, or has lost, its privileges.
//
// States: offline -> connecting -> live, with error and credential_expired as
// terminal states until an explicit Leave/Join cycle.
type MediaSession struct {
	factory  ports.TransportFactory
	manager  ports.TokenManager
	appID    string
	subject  domain.SubjectID
	role     domain.Role
	listener ports.SessionListener
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	state     domain.SessionState
	channel   domain.ChannelID
	transport ports.MediaTransport
	loopDone  chan struct{}
}

func NewMediaSession(
	factory ports.TransportFactory,
	manager ports.TokenManager,
	appID string,
	subject domain.SubjectID,
	role domain.Role,
	listener ports.SessionListener,
	logger *zap.SugaredLogger,
) *MediaSession {
	return &MediaSession{
		factory:  factory,
		manager:  manager,
		appID:    appID,
		subject:  subject,
		role:     role,
		listener: listener,
		logger:   logger,
		state:    domain.SessionOffline,
	}
}

// State returns the current session state.
func (s *MediaSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join obtains a credential (cached if still usable, freshly requested
// otherwise) and opens the media session with it.
func (s *MediaSession) Join(ctx context.Context, channel domain.ChannelID) error {
	s.mu.Lock()
	if s.state != domain.SessionOffline {
		s.mu.Unlock()
		return domain.ErrSessionActive
	}
	s.mu.Unlock()

	cred := s.manager.GetToken(channel, s.subject, s.role)
	if cred == nil {
		var err error
		cred, err = s.manager.RequestToken(ctx, domain.TokenRequest{
			Channel: channel,
			Subject: s.subject,
			Role:    s.role,
		})
		if err != nil {
			s.notifyError(err)
			return err
		}
	}

	transport, err := s.factory.CreateSession("live", "vp8")
	if err != nil {
		s.setState(domain.SessionError)
		s.notifyError(errors.NewTransportError(err.Error()))
		return err
	}

	if err := transport.Join(ctx, s.appID, channel, cred.SignedValue, s.subject); err != nil {
		s.setState(domain.SessionError)
		s.notifyError(errors.NewTransportError(err.Error()))
		return err
	}

	s.mu.Lock()
	s.channel = channel
	s.transport = transport
	s.state = domain.SessionConnecting
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.OnStateChange(domain.SessionConnecting)
	}

	go s.consumeEvents(transport, s.loopDone)
	return nil
}

// Leave closes the media session, evicts this triple's cache entry and
// returns to offline regardless of prior state. Eviction happens only after
// the event loop has drained: a refresh still in flight when Leave is called
// would otherwise land after the eviction and resurrect the entry, timer and
// all.
func (s *MediaSession) Leave() error {
	s.mu.Lock()
	transport := s.transport
	channel := s.channel
	s.transport = nil
	s.channel = ""
	done := s.loopDone
	s.loopDone = nil
	s.mu.Unlock()

	if transport != nil {
		if err := transport.Leave(); err != nil {
			s.logger.Warnw("transport leave failed", "error", err)
		}
	}
	if done != nil {
		<-done
	}
	if transport != nil {
		s.manager.Evict(channel, s.subject, s.role)
	}

	s.setState(domain.SessionOffline)
	return nil
}

// HandleRenewalFailure is wired as the token manager's renewal-failure hook.
// A failed scheduled renewal does not end the session (the transport still
// holds valid privileges until expiry) but the UI learns about the gap
// immediately instead of at expiry time.
func (s *MediaSession) HandleRenewalFailure(req domain.TokenRequest, err error) {
	s.mu.Lock()
	active := s.channel == req.Channel && s.subject == req.Subject && s.role == req.Role
	s.mu.Unlock()
	if !active {
		return
	}

	s.logger.Warnw("background renewal failed for active session",
		"channel", req.Channel, "uid", req.Subject, "error", err)
	if s.listener != nil {
		s.listener.OnSessionError(string(errors.Categorize(err)), err.Error())
	}
}

func (s *MediaSession) consumeEvents(transport ports.MediaTransport, done chan struct{}) {
	defer close(done)

	for ev := range transport.Events() {
		s.handleEvent(transport, ev)
	}
}

func (s *MediaSession) handleEvent(transport ports.MediaTransport, ev domain.TransportEvent) {
	switch ev.Type {
	case domain.EventTokenWillExpire:
		s.renewInPlace(transport)

	case domain.EventTokenExpired:
		// Renewal did not happen in time. In-place renewal is no longer
		// possible; the session must be rejoined from scratch.
		s.setState(domain.SessionCredentialExpired)
		s.notifyError(errors.NewAuthorizationExpiredError("session credential expired"))

	case domain.EventUserPublished:
		s.setState(domain.SessionLive)
		if s.listener != nil {
			s.listener.OnViewerJoined(ev.Subject)
		}

	case domain.EventUserUnpublished:
		// Stream may still carry other tracks; no state change.

	case domain.EventUserLeft:
		if s.listener != nil {
			s.listener.OnViewerLeft(ev.Subject)
		}

	case domain.EventConnectionStateChanged:
		if ev.State == domain.ConnectionDisconnected && s.State() == domain.SessionConnecting {
			s.setState(domain.SessionOffline)
		}

	case domain.EventException:
		if ev.IsAuthorizationException() {
			s.setState(domain.SessionCredentialExpired)
			s.notifyError(errors.NewAuthorizationExpiredError(ev.Message))
		} else {
			s.setState(domain.SessionError)
			s.notifyError(errors.NewTransportError(ev.Message))
		}
	}
}

// renewInPlace refreshes the credential and hands the new signed value to the
// open session without disrupting the media stream. If the refresh fails the
// session is treated as expired. A Leave that started while the refresh was in
// flight makes the transport stale; stale renewals abort without reporting an
// error, and Leave evicts whatever the refresh may have cached.
func (s *MediaSession) renewInPlace(transport ports.MediaTransport) {
	s.mu.Lock()
	channel := s.channel
	active := s.transport == transport
	s.mu.Unlock()
	if !active {
		return
	}

	cred, err := s.manager.RefreshToken(context.Background(), channel, s.subject, s.role)
	if err != nil {
		if !s.transportActive(transport) {
			return
		}
		s.logger.Errorw("credential refresh failed", "channel", channel, "error", err)
		s.setState(domain.SessionCredentialExpired)
		s.notifyError(err)
		return
	}

	if !s.transportActive(transport) {
		return
	}

	if err := transport.RenewToken(cred.SignedValue); err != nil {
		if !s.transportActive(transport) {
			return
		}
		s.logger.Errorw("in-place token renewal rejected", "channel", channel, "error", err)
		s.setState(domain.SessionCredentialExpired)
		s.notifyError(errors.NewAuthorizationExpiredError(err.Error()))
		return
	}

	s.logger.Infow("session credential renewed in place", "channel", channel, "uid", s.subject)
}

func (s *MediaSession) transportActive(transport ports.MediaTransport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport == transport
}

func (s *MediaSession) setState(state domain.SessionState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	// Error states are terminal until an explicit Leave/Join cycle.
	if (s.state == domain.SessionError || s.state == domain.SessionCredentialExpired) &&
		state != domain.SessionOffline {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.OnStateChange(state)
	}
}

func (s *MediaSession) notifyError(err error) {
	if s.listener == nil {
		return
	}
	s.listener.OnSessionError(string(errors.Categorize(err)), err.Error())
}
