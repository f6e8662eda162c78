package syncbus

import (
	"context"
	"sync"
)

// Network connects in-process Memory buses. Every published message is
// delivered to every joined member, the publisher included, as a real
// broker would.
type Network struct {
	mu      sync.Mutex
	members map[*Memory]struct{}
}

func NewNetwork() *Network {
	return &Network{members: make(map[*Memory]struct{})}
}

func (n *Network) Join() *Memory {
	m := &Memory{
		net:  n,
		in:   make(chan []byte, 256),
		done: make(chan struct{}),
	}
	n.mu.Lock()
	n.members[m] = struct{}{}
	n.mu.Unlock()
	return m
}

func (n *Network) deliver(b []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for m := range n.members {
		select {
		case m.in <- b:
		default:
			// drop if member is not draining
		}
	}
}

type Memory struct {
	net  *Network
	in   chan []byte
	once sync.Once
	done chan struct{}
}

func (m *Memory) Publish(_ context.Context, msg Message) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	b, err := msg.Encode()
	if err != nil {
		return err
	}
	m.net.deliver(b)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, fn func(Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case b := <-m.in:
			msg, err := Decode(b)
			if err != nil {
				continue
			}
			fn(msg)
		}
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() {
		m.net.mu.Lock()
		delete(m.net.members, m)
		m.net.mu.Unlock()
		close(m.done)
	})
	return nil
}
