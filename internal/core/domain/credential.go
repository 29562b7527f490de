package domain

import (
	"fmt"
	"time"
)

type ChannelID string
type SubjectID uint32

// Role is the privilege level a credential grants on a channel.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// SigningRole is the numeric role encoded into the signed token.
type SigningRole int

const (
	SigningRolePublisher  SigningRole = 1
	SigningRoleSubscriber SigningRole = 2
)

// ParseRole maps the wire role string to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePublisher:
		return RolePublisher, nil
	case RoleSubscriber:
		return RoleSubscriber, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// SigningRole maps a Role to the value used by the signing primitive.
func (r Role) SigningRole() SigningRole {
	if r == RolePublisher {
		return SigningRolePublisher
	}
	return SigningRoleSubscriber
}

// Triple identifies one authorization scope: who may do what on which channel.
type Triple struct {
	Channel ChannelID
	Subject SubjectID
	Role    Role
}

func (t Triple) Key() string {
	return fmt.Sprintf("%s-%d-%s", t.Channel, t.Subject, t.Role)
}

// TokenRequest is a request to the token authority.
type TokenRequest struct {
	Channel ChannelID
	Subject SubjectID
	Role    Role

	// LifetimeSeconds overrides the authority default when > 0.
	LifetimeSeconds int64
}

func (r TokenRequest) Triple() Triple {
	return Triple{Channel: r.Channel, Subject: r.Subject, Role: r.Role}
}

// Credential is a signed, time-bounded proof of authorization to publish or
// subscribe on a channel. SignedValue is opaque to the client; it is never
// parsed or validated outside the authority.
type Credential struct {
	Channel     ChannelID
	Subject     SubjectID
	Role        Role
	AppID       string
	SignedValue string
	ExpiresAt   int64 // unix seconds
}

// ValidAt reports whether the credential has not expired at t.
func (c *Credential) ValidAt(t time.Time) bool {
	return t.Unix() < c.ExpiresAt
}

// UsableAt reports whether the credential is still usable for planning
// purposes at t, leaving the renewal skew as safety margin.
func (c *Credential) UsableAt(t time.Time, skew time.Duration) bool {
	return t.Unix() < c.ExpiresAt-int64(skew.Seconds())
}
