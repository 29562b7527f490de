package domain

import "errors"

var (
	ErrViewerNotFound  = errors.New("viewer not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrSessionActive   = errors.New("session already active")
	ErrSessionClosed   = errors.New("session closed")
)
