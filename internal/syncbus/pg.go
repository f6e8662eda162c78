package syncbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG relays messages over Postgres LISTEN/NOTIFY on a single channel.
type PG struct {
	pool    *pgxpool.Pool
	channel string
	owned   bool
	retry   time.Duration

	mu     sync.Mutex
	closed bool
}

// NewPG uses an existing pool; Close leaves the pool open.
func NewPG(pool *pgxpool.Pool, channel string) *PG {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PG{pool: pool, channel: channel, retry: time.Second}
}

func OpenPG(ctx context.Context, dsn, channel string) (*PG, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse sync dsn: %w", err)
	}
	// one listener connection plus publishers
	cfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect sync: %w", err)
	}
	b := NewPG(pool, channel)
	b.owned = true
	return b, nil
}

func (b *PG) Publish(ctx context.Context, msg Message) error {
	if b.isClosed() {
		return ErrClosed
	}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if _, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

func (b *PG) Subscribe(ctx context.Context, fn func(Message)) error {
	for {
		err := b.listen(ctx, fn)
		if ctx.Err() != nil || b.isClosed() {
			return nil
		}
		if err == nil {
			continue
		}
		// connection dropped; reconnect after a pause
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.retry):
		}
	}
}

func (b *PG) listen(ctx context.Context, fn func(Message)) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `UNLISTEN *`)
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", b.channel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("wait notification: %w", err)
		}
		msg, err := Decode([]byte(n.Payload))
		if err != nil {
			continue
		}
		fn(msg)
	}
}

func (b *PG) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.owned {
		b.pool.Close()
	}
	return nil
}

func (b *PG) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
