package session

import "sync"

// Topics published to session listeners.
const (
	TopicSession          = "session"
	TopicProfiles         = "profiles"
	TopicAnnouncements    = "announcements"
	TopicFeedbacks        = "feedbacks"
	TopicConnections      = "connections"
	TopicSentRequests     = "sentRequests"
	TopicReceivedRequests = "receivedRequests"
	TopicCommands         = "commands"
)

// Event tells a listener that part of the session state changed.
type Event struct {
	Topic string `json:"topic"`
}

type broadcaster struct {
	mu        sync.Mutex
	listeners map[int]chan Event
	next      int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{listeners: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 32)
	b.listeners[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if l, ok := b.listeners[id]; ok {
			delete(b.listeners, id)
			close(l)
		}
	}
}

// publish never blocks; a listener that falls behind misses events and is
// expected to refetch.
func (b *broadcaster) publish(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.listeners {
		select {
		case ch <- Event{Topic: topic}:
		default:
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.listeners {
		close(ch)
		delete(b.listeners, id)
	}
}
