package engine

import (
	"fmt"
	"log"

	"aionclock/store"
)

// Journal is where lifecycle records are appended.
type Journal interface {
	AppendJournal(e store.JournalEntry) (int64, error)
}

// AttachJournal records transitions, reboots and registration outcomes
// under bootID. Write failures are logged and otherwise ignored.
func (e *Engine) AttachJournal(j Journal, bootID string) {
	e.Events.SubscribeTypes(func(evt Event) {
		entry := store.JournalEntry{BootID: bootID}
		switch p := evt.Payload.(type) {
		case StateChangedEvent:
			entry.Kind = store.JournalTransition
			entry.FromState = p.From.String()
			entry.ToState = p.To.String()
		case RebootScheduledEvent:
			entry.Kind = store.JournalReboot
			entry.FromState = e.dc.State.String()
			entry.Detail = p.Reason
			if p.CredentialsCleared {
				entry.Detail += " (credentials cleared)"
			}
		case RegistrationEvent:
			entry.Kind = store.JournalRegistration
			entry.FromState = StateConnect.String()
			entry.Detail = fmt.Sprintf("attempt=%d status=%d", p.Attempt, p.Status)
			if p.Error != "" {
				entry.Detail += " error=" + p.Error
			}
		default:
			return
		}
		if _, err := j.AppendJournal(entry); err != nil {
			log.Printf("journal: append %s: %v", entry.Kind, err)
		}
	}, EventStateChanged, EventRebootScheduled, EventRegistration)
}
