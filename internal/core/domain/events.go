package domain

// SessionState is the state of a media session.
type SessionState string

const (
	SessionOffline           SessionState = "offline"
	SessionConnecting        SessionState = "connecting"
	SessionLive              SessionState = "live"
	SessionError             SessionState = "error"
	SessionCredentialExpired SessionState = "credential_expired"
)

// TransportEventType tags events crossing the media transport boundary.
type TransportEventType string

const (
	EventTokenWillExpire        TransportEventType = "token_will_expire"
	EventTokenExpired           TransportEventType = "token_expired"
	EventUserPublished          TransportEventType = "user_published"
	EventUserUnpublished        TransportEventType = "user_unpublished"
	EventUserLeft               TransportEventType = "user_left"
	EventConnectionStateChanged TransportEventType = "connection_state_changed"
	EventException              TransportEventType = "exception"
)

// Transport connection states reported via EventConnectionStateChanged.
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
)

// TransportEvent is one tagged event from the media transport. The adapter
// consumes these as a stream and never inspects transport internals.
type TransportEvent struct {
	Type TransportEventType

	// Subject is set for user_* events.
	Subject SubjectID

	// State is set for connection_state_changed events.
	State string

	// Code and Message carry exception details. Authorization codes map to
	// credential expiry, everything else to a transport error.
	Code    string
	Message string
}

// Exception codes the adapter treats as loss of authorization.
const (
	ExceptionInvalidToken = "INVALID_TOKEN"
	ExceptionTokenExpired = "TOKEN_EXPIRED"
)

// IsAuthorizationException reports whether an exception event means the
// current credential lost its privileges.
func (e TransportEvent) IsAuthorizationException() bool {
	return e.Type == EventException &&
		(e.Code == ExceptionInvalidToken || e.Code == ExceptionTokenExpired)
}
