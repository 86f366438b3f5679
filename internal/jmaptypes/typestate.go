package jmaptypes

import "fmt"

// TypeState is one of the subscribable collection names a PushSubscription
// can request notifications for.
type TypeState string

// The type-states a push subscription may name in its Types property.
const (
	TypeStateEmail            TypeState = "Email"
	TypeStateEmailDelivery    TypeState = "EmailDelivery"
	TypeStateEmailSubmission  TypeState = "EmailSubmission"
	TypeStateMailbox          TypeState = "Mailbox"
	TypeStateThread           TypeState = "Thread"
	TypeStateIdentity         TypeState = "Identity"
	TypeStateVacationResponse TypeState = "VacationResponse"
	TypeStateSieveScript      TypeState = "SieveScript"
)

var knownTypeStates = map[TypeState]bool{
	TypeStateEmail:            true,
	TypeStateEmailDelivery:    true,
	TypeStateEmailSubmission:  true,
	TypeStateMailbox:          true,
	TypeStateThread:           true,
	TypeStateIdentity:         true,
	TypeStateVacationResponse: true,
	TypeStateSieveScript:      true,
}

// ParseTypeState validates that name names a known subscribable collection.
func ParseTypeState(name string) (TypeState, error) {
	ts := TypeState(name)
	if !knownTypeStates[ts] {
		return "", fmt.Errorf("unknown type-state: %q", name)
	}
	return ts, nil
}
