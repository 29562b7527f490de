package ports

import (
	"context"

	"streamgate/internal/core/domain"
)

// TokenSource issues credentials. The in-process issuer and the HTTP client
// to a remote authority both satisfy it, so the cache manager never cares
// which side of the wire it runs on.
type TokenSource interface {
	Issue(ctx context.Context, req domain.TokenRequest) (*domain.Credential, error)
}

// TokenManager caches credentials per triple and keeps them fresh.
type TokenManager interface {
	RequestToken(ctx context.Context, req domain.TokenRequest) (*domain.Credential, error)
	GetToken(channel domain.ChannelID, subject domain.SubjectID, role domain.Role) *domain.Credential
	RefreshToken(ctx context.Context, channel domain.ChannelID, subject domain.SubjectID, role domain.Role) (*domain.Credential, error)
	Evict(channel domain.ChannelID, subject domain.SubjectID, role domain.Role)
	ClearAll()
}

// MediaTransport is the capability surface consumed from the media SDK.
// The adapter never reaches past it.
type MediaTransport interface {
	Join(ctx context.Context, appID string, channel domain.ChannelID, token string, subject domain.SubjectID) error
	RenewToken(token string) error
	Leave() error
	Events() <-chan domain.TransportEvent
}

// TransportFactory creates media transport sessions.
type TransportFactory interface {
	CreateSession(mode, codec string) (MediaTransport, error)
}

// SessionListener receives adapter outputs destined for the UI layer.
type SessionListener interface {
	OnStateChange(state domain.SessionState)
	OnViewerJoined(subject domain.SubjectID)
	OnViewerLeft(subject domain.SubjectID)
	OnSessionError(category string, message string)
}
