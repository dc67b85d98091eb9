package pipeline

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType names a pipeline lifecycle occurrence worth observing from
// outside a speaker's task.
type EventType string

const (
	EventSpeakerStarted   EventType = "speaker.started"
	EventSpeakerStopped   EventType = "speaker.stopped"
	EventContextReset     EventType = "speaker.context_reset"
	EventTranscriptFlush  EventType = "speaker.transcript_flush"
	EventDeliveryStarted  EventType = "delivery.started"
	EventDeliveryFailed   EventType = "delivery.failed"
	EventDeliveryComplete EventType = "delivery.completed"
)

// Event is one occurrence published on the bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SpeakerID string
	Data      interface{}
}

// ResetData describes a context reset.
type ResetData struct {
	Reason string
}

// FlushData describes a transcript flush.
type FlushData struct {
	Reason string
	Length int
}

// DeliveryData describes a per-listener delivery outcome.
type DeliveryData struct {
	ListenerID string
	Language   string
	Stage      string
	Err        string
}

// EventHandler processes one event; it must not block.
type EventHandler func(Event)

// EventBus fans published events out to subscribers on one goroutine. A
// slow handler never blocks the publisher but delays every later handler
// and event; a panicking handler is recovered and does not stop the others.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
	buffer   chan Event
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewEventBus creates a bus with the given buffered-channel capacity.
func NewEventBus(bufferSize int) *EventBus {
	b := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		buffer:   make(chan Event, bufferSize),
		stopCh:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Subscribe registers handler for eventType.
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish enqueues event for asynchronous delivery, dropping it if the
// buffer is full.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.buffer <- event:
	default:
		logrus.WithField("event_type", event.Type).Warn("pipeline event dropped, buffer full")
	}
}

func (b *EventBus) loop() {
	defer b.wg.Done()
	for {
		select {
		case event := <-b.buffer:
			b.deliver(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.buffer:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) deliver(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func(handler EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("event_type", event.Type).WithField("panic", r).Error("pipeline event handler panic")
				}
			}()
			handler(event)
		}(h)
	}
}

// Stop drains remaining events and shuts the bus down.
func (b *EventBus) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}
