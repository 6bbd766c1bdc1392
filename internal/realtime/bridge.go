package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpillora/backoff"
)

// notifyChannel é o canal do LISTEN/NOTIFY compartilhado entre instâncias
const notifyChannel = "bazaar_realtime"

// PGBridge publica eventos via pg_notify para que todas as instâncias
// (inclusive esta) os recebam pelo LISTEN e entreguem ao hub local.
type PGBridge struct {
	pool *pgxpool.Pool
	hub  *Hub
}

var _ Publisher = (*PGBridge)(nil)

// NewPGBridge cria a ponte entre o PostgreSQL e o hub
func NewPGBridge(pool *pgxpool.Pool, hub *Hub) *PGBridge {
	return &PGBridge{pool: pool, hub: hub}
}

func (b *PGBridge) Publish(ctx context.Context, channel, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("falha ao serializar evento %s: %w", event, err)
	}
	payload, err := json.Marshal(Event{Channel: channel, Name: event, Data: raw})
	if err != nil {
		return err
	}
	if _, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("falha no pg_notify: %w", err)
	}
	return nil
}

// Run escuta as notificações até o contexto ser cancelado, reconectando
// com backoff exponencial quando a conexão cai.
func (b *PGBridge) Run(ctx context.Context) error {
	bo := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for {
		err := b.listen(ctx, bo)
		if ctx.Err() != nil {
			return nil
		}
		wait := bo.Duration()
		log.Warnw("LISTEN interrompido, reconectando", "error", err, "in", wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *PGBridge) listen(ctx context.Context, bo *backoff.Backoff) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	log.Infow("escutando eventos de tempo real", "channel", notifyChannel)
	bo.Reset()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var evt Event
		if err := json.Unmarshal([]byte(n.Payload), &evt); err != nil {
			log.Warnw("notificação inválida ignorada", "error", err)
			continue
		}
		if err := b.hub.Dispatch(evt); err != nil {
			log.Warnw("falha ao entregar evento", "channel", evt.Channel, "error", err)
		}
	}
}
