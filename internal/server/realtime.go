package server

import (
	"context"
	"sync"
	"time"

	"github.com/ratherlab/rather/backend/internal/preferences"
	"github.com/ratherlab/rather/backend/internal/realtime"
)

const (
	RealtimeEventVoteCast  = "vote-cast"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "rather-backend"
)

// RealtimeMessage is a single event delivered to the subscribers of a category.
type RealtimeMessage struct {
	CategoryID   uint
	EventType    string
	PreferenceID uint
	VoteID       uint
	Vote         string
	Timestamp    time.Time
}

// RealtimeDispatcher fans vote events out to the subscribers of each category.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[uint]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[uint]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for a category. The subscription ends when ctx
// is done or the returned cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, categoryID uint) (<-chan RealtimeMessage, func()) {
	if categoryID == 0 {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(categoryID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(categoryID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message without blocking; slow subscribers drop events.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.CategoryID == 0 || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.CategoryID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// VoteRecorded lets the dispatcher observe the preference service directly
// when no cross-replica bus is configured.
func (d *RealtimeDispatcher) VoteRecorded(_ context.Context, event preferences.VoteEvent) {
	d.PublishEvent(realtime.EventFromVote(event))
}

// PublishEvent delivers a wire event, typically one forwarded from Redis.
func (d *RealtimeDispatcher) PublishEvent(event realtime.Event) {
	d.Publish(RealtimeMessage{
		CategoryID:   event.CategoryID,
		EventType:    RealtimeEventVoteCast,
		PreferenceID: event.PreferenceID,
		VoteID:       event.VoteID,
		Vote:         event.Vote,
		Timestamp:    event.Timestamp,
	})
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(categoryID uint, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[categoryID]; !ok {
		d.subscribers[categoryID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[categoryID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(categoryID uint, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[categoryID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, categoryID)
		}
	}
	d.mu.Unlock()
}

func (d *RealtimeDispatcher) subscriberCount(categoryID uint) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[categoryID])
}
