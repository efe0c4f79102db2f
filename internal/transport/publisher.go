// Package transport implements the depth-snapshot fan-out publisher and
// an optional websocket sink onto it, using a buffered-channel,
// drop-on-backpressure subscriber model.
package transport

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wessimpson/lobsim/internal/sim"
)

// ChannelPublisher fans a snapshot out to every subscriber's buffered
// channel, dropping the update for any subscriber whose channel is full
// rather than blocking the step driver on a slow reader.
type ChannelPublisher struct {
	mu         sync.RWMutex
	subs       []chan sim.Snapshot
	bufferSize int
}

// NewChannelPublisher constructs a publisher whose subscriber channels
// have the given buffer size, defaulting to 100 when bufferSize <= 0.
func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &ChannelPublisher{bufferSize: bufferSize}
}

// Subscribe returns a channel that receives every subsequent snapshot. A
// publisher with zero subscribers is not an error
func (p *ChannelPublisher) Subscribe() <-chan sim.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan sim.Snapshot, p.bufferSize)
	p.subs = append(p.subs, ch)
	return ch
}

// Unsubscribe removes and closes a previously returned channel.
func (p *ChannelPublisher) Unsubscribe(ch <-chan sim.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, sub := range p.subs {
		if sub == ch {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish implements internal/driver.Publisher: non-blocking, best-effort
// delivery to every subscriber.
func (p *ChannelPublisher) Publish(snap sim.Snapshot) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			log.Warn().Msg("snapshot publisher: subscriber channel full, dropping update")
		}
	}
}

// Close closes every subscriber channel.
func (p *ChannelPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}
