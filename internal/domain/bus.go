package domain

// EventBus routes chat events from the transport to the orchestrator.
type EventBus interface {
	Publish(evt ChatEvent)
	Subscribe() <-chan ChatEvent
	Close()
}
