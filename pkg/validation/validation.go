package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// ChannelRegex validates channel name format
	ChannelRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// PhoneRegex accepts international numbers with optional leading +
	PhoneRegex = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)
)

// ValidateChannel validates a channel name
func ValidateChannel(channel string) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return fmt.Errorf("channel is required")
	}
	if len(channel) > 64 {
		return fmt.Errorf("channel is too long (max 64 characters)")
	}
	if !ChannelRegex.MatchString(channel) {
		return fmt.Errorf("channel contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateFullName validates a viewer's full name
func ValidateFullName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("full name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("full name is too long (max 100 characters)")
	}
	return nil
}

// ValidatePhoneNumber validates a viewer's phone number
func ValidatePhoneNumber(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}
	if !PhoneRegex.MatchString(phone) {
		return fmt.Errorf("invalid phone number format")
	}
	return nil
}
