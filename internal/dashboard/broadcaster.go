package dashboard

import (
	"sync"
	"time"
)

// Broadcaster fans dashboard notifications out to connected event-stream
// clients. A client that does not take a message within sendTimeout is
// dropped.
type Broadcaster struct {
	mu          sync.Mutex
	clients     map[chan string]bool
	sendTimeout time.Duration
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:     make(map[chan string]bool),
		sendTimeout: time.Second,
	}
}

// Register adds a client and returns its message channel.
func (b *Broadcaster) Register() chan string {
	ch := make(chan string, 8)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[ch] = true
	return ch
}

// Unregister removes a client. It is safe to call for a client that was
// already dropped.
func (b *Broadcaster) Unregister(ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients[ch] {
		delete(b.clients, ch)
		close(ch)
	}
}

func (b *Broadcaster) Broadcast(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- message:
		case <-time.After(b.sendTimeout):
			delete(b.clients, ch)
			close(ch)
		}
	}
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
