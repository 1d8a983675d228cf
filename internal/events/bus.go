/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventLayerCreated EventType = "layer.created"
	EventLayerUpdated EventType = "layer.updated"
	EventLayerDeleted EventType = "layer.deleted"

	EventTimelineCreated  EventType = "timeline.created"
	EventTimelineUpdated  EventType = "timeline.updated"
	EventTimelineDeleted  EventType = "timeline.deleted"
	EventTimelineResolved EventType = "timeline.resolved"

	EventExportCreated EventType = "export.created"
)

// AllTypes lists every event type, in declaration order.
var AllTypes = []EventType{
	EventLayerCreated, EventLayerUpdated, EventLayerDeleted,
	EventTimelineCreated, EventTimelineUpdated, EventTimelineDeleted, EventTimelineResolved,
	EventExportCreated,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the event bus surface used by services. Both the in-process
// Bus and the NATS-backed bus implement it.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// instead of blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

var _ Publisher = (*Bus)(nil)
