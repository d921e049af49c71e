// internal/realtime/broadcaster.go
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/markb/workhub/internal/log"
	"github.com/markb/workhub/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Broadcaster persists messages and fans events out to member connections.
type Broadcaster struct {
	presence *Coordinator
	store    store.Store
	clock    *Clock
	cfg      Config
	metrics  *metrics
	tracer   trace.Tracer
}

// NewBroadcaster creates a broadcaster. It does not register itself as the
// coordinator's notifier; the Hub wires that.
func NewBroadcaster(presence *Coordinator, st store.Store, clock *Clock, cfg Config, m *metrics, tracer trace.Tracer) *Broadcaster {
	if clock == nil {
		clock = NewClock()
	}
	if m == nil {
		m = noopMetrics()
	}
	if tracer == nil {
		tracer = newTracer(nil)
	}
	return &Broadcaster{
		presence: presence,
		store:    st,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		tracer:   tracer,
	}
}

// Send stores body as a message from the identity owning connID and pushes it to
// every connection of every current member of channel, the sender's included.
//
// Nothing is pushed unless the message was stored. A store failure or timeout is
// returned wrapped in ErrPersistenceFailure. Failed pushes are only logged.
func (b *Broadcaster) Send(ctx context.Context, connID, channel, body string) (*store.Message, error) {
	identity, ok := b.presence.IdentityOf(connID)
	if !ok {
		return nil, ErrUnauthenticatedCaller
	}
	name, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	if body == "" {
		return nil, ErrEmptyMessageBody
	}
	if !b.presence.IsMember(name, identity) {
		return nil, ErrNotAMember
	}

	ctx, span := b.tracer.Start(ctx, "realtime.send", trace.WithAttributes(
		attribute.String("channel", name),
		attribute.String("sender", identity),
	))
	defer span.End()

	msg := &store.Message{
		ID:        uuid.NewString(),
		Channel:   name,
		Sender:    identity,
		Body:      body,
		CreatedAt: b.clock.Now(),
	}

	if err := b.persist(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		b.metrics.persistFailures.Add(ctx, 1)
		log.Warn("realtime: message not persisted", "channel", name, "identity", identity, "message_id", msg.ID, "error", err.Error())
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	b.metrics.persisted.Add(ctx, 1)

	// Membership is read after the write so a member that left while the message was
	// being stored does not receive it.
	members := b.presence.MembersOf(name)
	b.Notify(ctx, members, Event{
		Type:      EventMessageReceived,
		Channel:   name,
		Identity:  identity,
		MessageID: msg.ID,
		Body:      msg.Body,
		Timestamp: msg.CreatedAt,
	})
	return msg, nil
}

func (b *Broadcaster) persist(ctx context.Context, msg *store.Message) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.PersistTimeout)
	defer cancel()

	policy := store.DefaultRetryPolicy()
	policy.MaxTries = uint(b.cfg.PersistRetries)
	_, err := store.AppendWithRetry(ctx, b.store, msg, policy)
	return err
}

// Notify pushes evt to every live connection of the given members. Each push is
// bounded by the delivery timeout and runs detached from the caller's cancellation;
// a slow or dead recipient only loses its own copy. Notify returns once every push
// has finished or timed out.
func (b *Broadcaster) Notify(ctx context.Context, members []string, evt Event) {
	conns := b.presence.ConnectionsOf(members...)
	if len(conns) == 0 {
		return
	}

	start := time.Now()
	pushCtx := context.WithoutCancel(ctx)
	typeAttr := metric.WithAttributes(attribute.String("event", string(evt.Type)))

	var g errgroup.Group
	g.SetLimit(b.cfg.FanoutConcurrency)
	for _, conn := range conns {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(pushCtx, b.cfg.DeliveryTimeout)
			defer cancel()

			if err := conn.Deliver(dctx, evt); err != nil {
				err = fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
				b.metrics.deliveryFailures.Add(pushCtx, 1, typeAttr)
				level := log.Warn
				if errors.Is(err, errConnClosed) {
					level = log.Debug
				}
				level("realtime: delivery failed", "conn_id", conn.ID(), "channel", evt.Channel, "event", string(evt.Type), "error", err.Error())
				return nil
			}
			b.metrics.deliveries.Add(pushCtx, 1, typeAttr)
			return nil
		})
	}
	_ = g.Wait()

	b.metrics.fanoutDuration.Record(pushCtx, float64(time.Since(start).Microseconds())/1000, typeAttr)
}
