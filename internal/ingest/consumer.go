// Package ingest consumes completed call transcripts from an AMQP queue and
// hands them to the transcript store.
//
// Messages are JSON objects published by the transcription service once per
// call segment. Only the final segment (is_final=true) carries the full
// transcript; earlier segments are acknowledged and dropped.
//
// Acknowledgement rules:
//   - stored: ack
//   - non-final segment: ack
//   - malformed JSON or invalid call metadata: reject without requeue
//   - store degraded on first delivery: requeue once
//   - store degraded on redelivery: reject without requeue (dead-letter if
//     the queue has one configured)
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/observability"
	"github.com/tbourn/call-intel-backend/internal/services"
)

const (
	DefaultQueue    = "call_transcriptions"
	DefaultPrefetch = 8

	storeTimeout = 15 * time.Second
)

// ErrDeliveriesClosed is returned by Run when the broker closes the
// delivery channel, usually because the connection dropped.
var ErrDeliveriesClosed = errors.New("ingest: delivery channel closed")

// Message is one transcription event.
type Message struct {
	CallID        int64  `json:"call_id"`
	AgentName     string `json:"agent_name"`
	ContactName   string `json:"contact_name"`
	Duration      int    `json:"duration"`
	Direction     string `json:"direction"`
	StartedAt     int64  `json:"started_at"`
	Transcription string `json:"transcription"`
	IsFinal       bool   `json:"is_final"`
}

// Meta converts the message into call metadata. A call that produced a
// transcript was answered.
func (m Message) Meta() domain.CallMeta {
	return domain.CallMeta{
		CallID:      m.CallID,
		AgentName:   strings.TrimSpace(m.AgentName),
		ContactName: strings.TrimSpace(m.ContactName),
		Duration:    m.Duration,
		Direction:   strings.ToLower(strings.TrimSpace(m.Direction)),
		StartedAt:   m.StartedAt,
		Answered:    true,
	}
}

// Storer persists a transcript. *services.TranscriptService satisfies it.
type Storer interface {
	Store(ctx context.Context, meta domain.CallMeta, text string) services.StoreOutcome
}

// Options configures the broker side of a Consumer.
type Options struct {
	URL      string
	Queue    string
	Prefetch int
}

// Consumer reads transcription events from one durable queue.
type Consumer struct {
	Transcripts Storer
	Log         zerolog.Logger

	queue string
	tag   string
	conn  *amqp.Connection
	ch    *amqp.Channel
}

// Dial connects to the broker, declares the queue as durable and applies the
// prefetch limit.
func Dial(opt Options, store Storer, log zerolog.Logger) (*Consumer, error) {
	if opt.Queue == "" {
		opt.Queue = DefaultQueue
	}
	if opt.Prefetch <= 0 {
		opt.Prefetch = DefaultPrefetch
	}

	conn, err := amqp.Dial(opt.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		opt.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", opt.Queue, err)
	}
	if err := ch.Qos(opt.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	return &Consumer{
		Transcripts: store,
		Log:         log.With().Str("queue", opt.Queue).Logger(),
		queue:       opt.Queue,
		tag:         "callintel-" + uuid.NewString(),
		conn:        conn,
		ch:          ch,
	}, nil
}

// Run consumes until ctx is done or the broker closes the channel. A
// cancelled ctx is a clean shutdown and returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(
		c.queue,
		c.tag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %q: %w", c.queue, err)
	}
	c.Log.Info().Str("consumer_tag", c.tag).Msg("ingest consumer started")

	err = c.consume(ctx, deliveries)
	if errors.Is(err, context.Canceled) {
		if cerr := c.ch.Cancel(c.tag, false); cerr != nil {
			c.Log.Warn().Err(cerr).Msg("cancel consumer")
		}
		return nil
	}
	return err
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery and settles it. It returns the result label
// recorded in metrics.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) string {
	result := c.handle(ctx, d)
	observability.ObserveIngest(result)
	return result
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) string {
	log := c.Log.With().Uint64("delivery_tag", d.DeliveryTag).Logger()

	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Warn().Err(err).Msg("rejecting malformed message")
		c.settle(log, d.Reject(false))
		return observability.IngestRejected
	}
	log = log.With().Int64("call_id", msg.CallID).Logger()

	if !msg.IsFinal {
		c.settle(log, d.Ack(false))
		return observability.IngestSkipped
	}

	meta := msg.Meta()
	if err := services.ValidateCall(meta); err != nil {
		log.Warn().Err(err).Msg("rejecting invalid call")
		c.settle(log, d.Reject(false))
		return observability.IngestRejected
	}
	if strings.TrimSpace(msg.Transcription) == "" {
		log.Warn().Msg("rejecting final message without transcription")
		c.settle(log, d.Reject(false))
		return observability.IngestRejected
	}

	// in-flight writes finish even when shutdown cancels ctx
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	out := c.Transcripts.Store(sctx, meta, msg.Transcription)

	switch {
	case !out.Degraded():
		c.settle(log, d.Ack(false))
		return observability.IngestStored
	case !d.Redelivered:
		log.Warn().Err(out.Err).Bool("index_skipped", out.IndexSkipped).Msg("store degraded, requeueing")
		c.settle(log, d.Reject(true))
		return observability.IngestRequeued
	default:
		log.Error().Err(out.Err).Bool("index_skipped", out.IndexSkipped).Msg("store degraded on redelivery, dropping")
		c.settle(log, d.Reject(false))
		return observability.IngestDegraded
	}
}

func (c *Consumer) settle(log zerolog.Logger, err error) {
	if err != nil {
		log.Error().Err(err).Msg("settle delivery")
	}
}

// Close shuts the channel and connection.
func (c *Consumer) Close() error {
	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}
