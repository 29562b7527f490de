package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// LoopbackFactory creates in-process media sessions: a pion peer connection
// pair wired back to back. It stands in for external media infrastructure in
// development and tests, including the privilege-expiry signals a real
// transport would deliver.
type LoopbackFactory struct {
	// PrivilegeTTL simulates the privilege window the media infrastructure
	// would grant per token; WarnBefore is how long before its end the
	// will-expire signal fires.
	PrivilegeTTL time.Duration
	WarnBefore   time.Duration
	Logger       *zap.SugaredLogger
}

func NewLoopbackFactory(privilegeTTL, warnBefore time.Duration, logger *zap.SugaredLogger) *LoopbackFactory {
	return &LoopbackFactory{
		PrivilegeTTL: privilegeTTL,
		WarnBefore:   warnBefore,
		Logger:       logger,
	}
}

func (f *LoopbackFactory) CreateSession(mode, codec string) (ports.MediaTransport, error) {
	if mode != "live" && mode != "rtc" {
		return nil, fmt.Errorf("unsupported transport mode %q", mode)
	}
	return &LoopbackSession{
		privilegeTTL: f.PrivilegeTTL,
		warnBefore:   f.WarnBefore,
		events:       make(chan domain.TransportEvent, 16),
		logger:       f.Logger,
	}, nil
}

// LoopbackSession is one joined loopback media session.
type LoopbackSession struct {
	mu     sync.Mutex
	local  *webrtc.PeerConnection
	remote *webrtc.PeerConnection
	closed bool

	privilegeTTL time.Duration
	warnBefore   time.Duration
	warnTimer    *time.Timer
	expireTimer  *time.Timer

	events chan domain.TransportEvent
	logger *zap.SugaredLogger
}

func (s *LoopbackSession) Join(ctx context.Context, appID string, channel domain.ChannelID, token string, subject domain.SubjectID) error {
	if appID == "" || token == "" {
		return fmt.Errorf("app id and token are required to join")
	}

	api := webrtc.NewAPI()
	cfg := webrtc.Configuration{}

	local, err := api.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to create local peer connection: %w", err)
	}

	remote, err := api.NewPeerConnection(cfg)
	if err != nil {
		local.Close()
		return fmt.Errorf("failed to create remote peer connection: %w", err)
	}

	// Trickle candidates straight across; nothing leaves the process.
	local.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			remote.AddICECandidate(c.ToJSON())
		}
	})
	remote.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			local.AddICECandidate(c.ToJSON())
		}
	})

	local.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.emit(domain.TransportEvent{
				Type:  domain.EventConnectionStateChanged,
				State: domain.ConnectionConnected,
			})
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			s.emit(domain.TransportEvent{
				Type:  domain.EventConnectionStateChanged,
				State: domain.ConnectionDisconnected,
			})
		}
	})

	if _, err := local.CreateDataChannel("media", nil); err != nil {
		local.Close()
		remote.Close()
		return fmt.Errorf("failed to create data channel: %w", err)
	}

	offer, err := local.CreateOffer(nil)
	if err != nil {
		local.Close()
		remote.Close()
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := local.SetLocalDescription(offer); err != nil {
		local.Close()
		remote.Close()
		return fmt.Errorf("failed to set local description: %w", err)
	}
	if err := remote.SetRemoteDescription(offer); err != nil {
		local.Close()
		remote.Close()
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := remote.CreateAnswer(nil)
	if err != nil {
		local.Close()
		remote.Close()
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := remote.SetLocalDescription(answer); err != nil {
		local.Close()
		remote.Close()
		return fmt.Errorf("failed to set answer description: %w", err)
	}
	if err := local.SetRemoteDescription(answer); err != nil {
		local.Close()
		remote.Close()
		return fmt.Errorf("failed to apply answer: %w", err)
	}

	s.mu.Lock()
	s.local = local
	s.remote = remote
	s.armPrivilegeTimersLocked()
	s.mu.Unlock()

	return nil
}

// RenewToken applies a renewed credential in place: the privilege window
// restarts without the connection dropping.
func (s *LoopbackSession) RenewToken(token string) error {
	if token == "" {
		return fmt.Errorf("empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.local == nil {
		return domain.ErrSessionClosed
	}

	s.armPrivilegeTimersLocked()
	if s.logger != nil {
		s.logger.Debugw("loopback privilege window restarted")
	}
	return nil
}

func (s *LoopbackSession) Leave() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimersLocked()
	local, remote := s.local, s.remote
	s.local, s.remote = nil, nil
	s.mu.Unlock()

	if local != nil {
		local.Close()
	}
	if remote != nil {
		remote.Close()
	}
	close(s.events)
	return nil
}

func (s *LoopbackSession) Events() <-chan domain.TransportEvent {
	return s.events
}

// armPrivilegeTimersLocked (re)starts the simulated privilege window.
func (s *LoopbackSession) armPrivilegeTimersLocked() {
	s.stopTimersLocked()

	if s.privilegeTTL <= 0 {
		return
	}

	warnDelay := s.privilegeTTL - s.warnBefore
	if warnDelay > 0 {
		s.warnTimer = time.AfterFunc(warnDelay, func() {
			s.emit(domain.TransportEvent{Type: domain.EventTokenWillExpire})
		})
	}
	s.expireTimer = time.AfterFunc(s.privilegeTTL, func() {
		s.emit(domain.TransportEvent{Type: domain.EventTokenExpired})
	})
}

func (s *LoopbackSession) stopTimersLocked() {
	if s.warnTimer != nil {
		s.warnTimer.Stop()
		s.warnTimer = nil
	}
	if s.expireTimer != nil {
		s.expireTimer.Stop()
		s.expireTimer = nil
	}
}

// emit delivers an event without ever blocking; a full buffer drops the
// oldest semantics in favor of simply skipping, which a consumer treats the
// same as a missed wakeup.
func (s *LoopbackSession) emit(ev domain.TransportEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	select {
	case s.events <- ev:
	default:
		if s.logger != nil {
			s.logger.Warnw("dropping transport event, consumer too slow", "type", ev.Type)
		}
	}
	s.mu.Unlock()
}

var _ ports.MediaTransport = (*LoopbackSession)(nil)
var _ ports.TransportFactory = (*LoopbackFactory)(nil)
