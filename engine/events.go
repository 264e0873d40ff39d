package engine

import (
	"time"

	"aionclock/telemetry"
)

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	EventStateChanged EventType = iota + 1
	EventRebootScheduled
	EventRegistration
	EventSampleTaken
	EventButton
	EventSettingsChanged
	EventBrokerConnected
	EventBrokerFailed
)

// Event is the envelope emitted on the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// StateChangedEvent is emitted on every operating state transition.
type StateChangedEvent struct {
	From State
	To   State
}

// RebootScheduledEvent is emitted when a reboot is queued.
type RebootScheduledEvent struct {
	Reason string
	Delay  time.Duration
	// CredentialsCleared is set when the reboot follows a factory reset.
	CredentialsCleared bool
}

// RegistrationEvent reports one join and registration attempt.
type RegistrationEvent struct {
	Attempt int
	Status  int // HTTP status, 0 if the request never completed
	Error   string
}

// SampleTakenEvent carries the newest telemetry sample and how many of its
// metrics reached the broker.
type SampleTakenEvent struct {
	Sample    telemetry.Sample
	Published int
}

// ButtonEvent reports a debounced button gesture.
type ButtonEvent struct {
	Gesture string
}

// BrokerEvent reports a broker connection attempt.
type BrokerEvent struct {
	Error string
}
