package syncbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS relays messages over a core NATS subject. No JetStream; messages
// published while an instance is disconnected are lost.
type NATS struct {
	nc      *nats.Conn
	subject string
}

func OpenNATS(url, subject string) (*NATS, error) {
	if subject == "" {
		subject = DefaultChannel
	}
	nc, err := nats.Connect(url,
		nats.Name("leaderboardd"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc, subject: subject}, nil
}

func (b *NATS) Publish(_ context.Context, msg Message) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.subject, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *NATS) Subscribe(ctx context.Context, fn func(Message)) error {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		msg, err := Decode(m.Data)
		if err != nil {
			return
		}
		fn(msg)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", b.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	<-ctx.Done()
	return nil
}

func (b *NATS) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
