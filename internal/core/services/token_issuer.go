package services

import (
	"context"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultTokenTTL is the credential lifetime used when a request does not
// ask for one.
const DefaultTokenTTL = 24 * time.Hour

// TokenIssuer is the token authority core: it validates issuance requests
// and signs time-bounded channel credentials. It is stateless between calls;
// issued credentials are never stored, so they can neither be revoked nor
// looked up later.
type TokenIssuer struct {
	appID          string
	appCertificate string
	defaultTTL     time.Duration
	logger         *zap.SugaredLogger

	now func() time.Time
}

// channelClaims is what the signing primitive covers. The resulting string
// is opaque to clients.
type channelClaims struct {
	AppID   string             `json:"app_id"`
	Channel string             `json:"channel"`
	UID     uint32             `json:"uid"`
	Role    domain.SigningRole `json:"role"`
	jwt.RegisteredClaims
}

func NewTokenIssuer(appID, appCertificate string, defaultTTL time.Duration, logger *zap.SugaredLogger) *TokenIssuer {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTokenTTL
	}
	return &TokenIssuer{
		appID:          appID,
		appCertificate: appCertificate,
		defaultTTL:     defaultTTL,
		logger:         logger,
		now:            time.Now,
	}
}

// Issue validates the request and mints a signed credential. Every failure
// path returns a typed *errors.AppError so the transport layer can map it to
// a deterministic boundary response.
func (s *TokenIssuer) Issue(ctx context.Context, req domain.TokenRequest) (*domain.Credential, error) {
	if req.Channel == "" || req.Role == "" {
		return nil, errors.NewMissingParameterError("channel", "uid", "role")
	}

	role, err := domain.ParseRole(string(req.Role))
	if err != nil {
		return nil, errors.NewInvalidRoleError(string(req.Role))
	}

	// An app ID without the certificate must behave exactly like no
	// configuration at all: issuing unsigned or weakly-scoped credentials
	// is worse than refusing.
	if s.appID == "" || s.appCertificate == "" {
		return nil, errors.NewServerMisconfiguredError("App Certificate not configured")
	}

	issuedAt := s.now()
	lifetime := s.defaultTTL
	if req.LifetimeSeconds > 0 {
		lifetime = time.Duration(req.LifetimeSeconds) * time.Second
	}
	expiresAt := issuedAt.Add(lifetime)

	claims := &channelClaims{
		AppID:   s.appID,
		Channel: string(req.Channel),
		UID:     uint32(req.Subject),
		Role:    role.SigningRole(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.appCertificate))
	if err != nil {
		return nil, errors.NewIssuanceFailedError(err)
	}

	s.logger.Infow("token issued",
		"channel", req.Channel,
		"uid", req.Subject,
		"role", role,
		"expires_at", expiresAt.Unix(),
	)

	return &domain.Credential{
		Channel:     req.Channel,
		Subject:     req.Subject,
		Role:        role,
		AppID:       s.appID,
		SignedValue: signed,
		ExpiresAt:   expiresAt.Unix(),
	}, nil
}
