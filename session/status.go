// Package session tracks session liveness: the last user interaction, the
// presence of an authenticated identity, and the security status derived
// from both.
package session

import "fmt"

// Status is the derived security status of the running session.
type Status string

const (
	StatusSecure  Status = "secure"
	StatusWarning Status = "warning"
	// StatusCritical is part of the status taxonomy but no evaluation rule
	// produces it yet.
	StatusCritical Status = "critical"
)

// Interaction is a kind of user interaction that counts as activity.
type Interaction string

const (
	InteractionPointerDown Interaction = "pointer_down"
	InteractionKeyDown     Interaction = "key_down"
	InteractionScroll      Interaction = "scroll"
	InteractionTouchStart  Interaction = "touch_start"
)

// Valid reports whether i is one of the recognized interaction kinds.
func (i Interaction) Valid() bool {
	switch i {
	case InteractionPointerDown, InteractionKeyDown, InteractionScroll, InteractionTouchStart:
		return true
	default:
		return false
	}
}

// ParseInteraction converts a host-supplied event name to an Interaction.
func ParseInteraction(s string) (Interaction, error) {
	i := Interaction(s)
	if !i.Valid() {
		return "", fmt.Errorf("unknown interaction kind %q", s)
	}
	return i, nil
}
