package services

import (
	"context"
	"testing"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/pkg/errors"

	"go.uber.org/zap/zaptest"
)

func TestTokenIssuer_Issue(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	tests := []struct {
		name     string
		appID    string
		cert     string
		req      domain.TokenRequest
		wantCode errors.ErrorCode
	}{
		{
			name:  "valid publisher request",
			appID: "app-123",
			cert:  "cert-secret",
			req: domain.TokenRequest{
				Channel: "main-live-stream",
				Subject: 42,
				Role:    domain.RolePublisher,
			},
		},
		{
			name:  "valid subscriber request",
			appID: "app-123",
			cert:  "cert-secret",
			req: domain.TokenRequest{
				Channel: "main-live-stream",
				Subject: 0,
				Role:    domain.RoleSubscriber,
			},
		},
		{
			name:  "missing channel",
			appID: "app-123",
			cert:  "cert-secret",
			req: domain.TokenRequest{
				Subject: 42,
				Role:    domain.RolePublisher,
			},
			wantCode: errors.ErrCodeMissingParameter,
		},
		{
			name:  "missing role",
			appID: "app-123",
			cert:  "cert-secret",
			req: domain.TokenRequest{
				Channel: "main-live-stream",
				Subject: 42,
			},
			wantCode: errors.ErrCodeMissingParameter,
		},
		{
			name:  "invalid role",
			appID: "app-123",
			cert:  "cert-secret",
			req: domain.TokenRequest{
				Channel: "main-live-stream",
				Subject: 42,
				Role:    "admin",
			},
			wantCode: errors.ErrCodeInvalidRole,
		},
		{
			name: "no credentials configured",
			req: domain.TokenRequest{
				Channel: "main-live-stream",
				Subject: 42,
				Role:    domain.RolePublisher,
			},
			wantCode: errors.ErrCodeServerMisconfigured,
		},
		{
			name:  "app ID without certificate",
			appID: "app-123",
			req: domain.TokenRequest{
				Channel: "main-live-stream",
				Subject: 42,
				Role:    domain.RolePublisher,
			},
			wantCode: errors.ErrCodeServerMisconfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := NewTokenIssuer(tt.appID, tt.cert, 0, logger)
			cred, err := issuer.Issue(context.Background(), tt.req)

			if tt.wantCode != "" {
				if err == nil {
					t.Fatalf("Issue() expected error code %s, got credential", tt.wantCode)
				}
				appErr := errors.GetAppError(err)
				if appErr == nil {
					t.Fatalf("Issue() error is not an AppError: %v", err)
				}
				if appErr.Code != tt.wantCode {
					t.Errorf("Issue() error code = %s, want %s", appErr.Code, tt.wantCode)
				}
				return
			}

			if err != nil {
				t.Fatalf("Issue() unexpected error: %v", err)
			}
			if cred.SignedValue == "" {
				t.Error("Issue() returned empty signed value")
			}
			if cred.Channel != tt.req.Channel || cred.Subject != tt.req.Subject {
				t.Errorf("Issue() credential triple mismatch: got (%s, %d)", cred.Channel, cred.Subject)
			}
			if cred.AppID != tt.appID {
				t.Errorf("Issue() appID = %s, want %s", cred.AppID, tt.appID)
			}
		})
	}
}

func TestTokenIssuer_DefaultLifetime(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	issuer := NewTokenIssuer("app-123", "cert-secret", 0, logger)

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return fixed }

	cred, err := issuer.Issue(context.Background(), domain.TokenRequest{
		Channel: "main-live-stream",
		Subject: 7,
		Role:    domain.RolePublisher,
	})
	if err != nil {
		t.Fatalf("Issue() unexpected error: %v", err)
	}

	want := fixed.Add(DefaultTokenTTL).Unix()
	if cred.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d (issued_at + 24h)", cred.ExpiresAt, want)
	}
}

func TestTokenIssuer_LifetimeOverride(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	issuer := NewTokenIssuer("app-123", "cert-secret", 0, logger)

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return fixed }

	cred, err := issuer.Issue(context.Background(), domain.TokenRequest{
		Channel:         "main-live-stream",
		Subject:         7,
		Role:            domain.RoleSubscriber,
		LifetimeSeconds: 3600,
	})
	if err != nil {
		t.Fatalf("Issue() unexpected error: %v", err)
	}

	want := fixed.Add(time.Hour).Unix()
	if cred.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d (issued_at + 1h)", cred.ExpiresAt, want)
	}
}
