// Package notify is the in-process change feed for new messages. Subscribers
// register per conversation and receive every message published after they
// subscribed, in publish order, until they cancel.
package notify

import (
	"sync"

	"rishta/models"
)

type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*Subscription // conversation id -> subscriptions
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]*Subscription)}
}

// Subscribe registers fn for new messages of conversationID. fn runs on a
// goroutine owned by the subscription, one message at a time.
func (h *Hub) Subscribe(conversationID string, fn func(models.Message)) *Subscription {
	h.mu.Lock()
	h.nextID++
	sub := &Subscription{
		id:             h.nextID,
		conversationID: conversationID,
		hub:            h,
		fn:             fn,
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[uint64]*Subscription)
	}
	h.subs[conversationID][sub.id] = sub
	h.mu.Unlock()

	go sub.run()
	return sub
}

// Publish queues m for every current subscriber of its conversation. It never
// blocks on a subscriber.
func (h *Hub) Publish(m models.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[m.ConversationID] {
		sub.enqueue(m)
	}
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.conversationID]
	delete(set, sub.id)
	if len(set) == 0 {
		delete(h.subs, sub.conversationID)
	}
}

// Subscription is the handle returned by Hub.Subscribe.
type Subscription struct {
	id             uint64
	conversationID string
	hub            *Hub
	fn             func(models.Message)

	mu      sync.Mutex
	queue   []models.Message
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *Subscription) ConversationID() string {
	return s.conversationID
}

// Cancel stops delivery. Messages still queued are discarded; a callback
// already running is allowed to finish. Safe to call more than once and from
// inside the callback.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		s.stopped = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) enqueue(m models.Message) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, m)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.stopped || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			m := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.fn(m)
		}
	}
}
