// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package results carries completed game results from the session manager to
// the result store over an in-process message bus.
package results

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pftl/pftl/internal/core"
	"github.com/pftl/pftl/internal/observability"
	"github.com/pftl/pftl/pkg/errutil"
)

// Topic is the bus topic completed results are published on.
const Topic = "game.results"

// Metadata keys set on every result message.
const (
	metaGameCode = "game_code"
	metaResultID = "result_id"
)

// CodeBusClosed is returned when a result is handed to a closed bus.
const CodeBusClosed = "RESULT_BUS_CLOSED"

// Config tunes persistence retries.
type Config struct {
	// SaveTimeout bounds each individual store write.
	SaveTimeout time.Duration `koanf:"save_timeout" env:"SAVE_TIMEOUT"`
	// RetryBase is the first backoff interval; it doubles per attempt.
	RetryBase time.Duration `koanf:"retry_base" env:"RETRY_BASE"`
	// MaxRetries is the number of retries after the first failed write.
	MaxRetries uint64 `koanf:"max_retries" env:"MAX_RETRIES"`
	// Buffer is the subscriber channel buffer.
	Buffer int64 `koanf:"buffer" env:"BUFFER" validate:"gte=0"`
}

// DefaultConfig returns the standard bus settings.
func DefaultConfig() Config {
	return Config{
		SaveTimeout: 5 * time.Second,
		RetryBase:   100 * time.Millisecond,
		MaxRetries:  5,
		Buffer:      64,
	}
}

// Bus implements core.ResultSink. HandOff publishes the result and waits for
// the subscriber to persist it, so the caller learns whether the write
// succeeded.
type Bus struct {
	cfg    Config
	store  core.ResultStore
	pubsub *gochannel.GoChannel
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]chan error
	closed  bool
}

var _ core.ResultSink = (*Bus)(nil)

// NewBus subscribes to the result topic and starts persisting results into
// store. Close stops it.
func NewBus(store core.ResultStore, cfg Config) (*Bus, error) {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultConfig().SaveTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultConfig().RetryBase
	}

	logger := watermill.NewSlogLogger(slog.Default())
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: cfg.Buffer}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := pubsub.Subscribe(ctx, Topic)
	if err != nil {
		cancel()
		return nil, oops.With("topic", Topic).Wrapf(err, "subscribe to result topic")
	}

	b := &Bus{
		cfg:     cfg,
		store:   store,
		pubsub:  pubsub,
		tracer:  otel.Tracer("github.com/pftl/pftl/internal/results"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		pending: make(map[string]chan error),
	}
	go b.consume(messages)
	return b, nil
}

// HandOff publishes result and blocks until it is persisted, the write
// finally fails, or ctx ends.
func (b *Bus) HandOff(ctx context.Context, result core.GameResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return oops.With("game_code", result.GameCode).Wrapf(err, "encode game result")
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(metaGameCode, result.GameCode)
	msg.Metadata.Set(metaResultID, result.ID.String())

	reply := make(chan error, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return oops.Code(CodeBusClosed).With("game_code", result.GameCode).Errorf("result bus is closed")
	}
	b.pending[msg.UUID] = reply
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, msg.UUID)
		b.mu.Unlock()
	}()

	if err := b.pubsub.Publish(Topic, msg); err != nil {
		return oops.With("game_code", result.GameCode).Wrapf(err, "publish game result")
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return oops.With("game_code", result.GameCode).Wrap(ctx.Err())
	}
}

func (b *Bus) consume(messages <-chan *message.Message) {
	defer close(b.done)
	for msg := range messages {
		err := b.persist(msg)
		msg.Ack()

		b.mu.Lock()
		reply, ok := b.pending[msg.UUID]
		delete(b.pending, msg.UUID)
		b.mu.Unlock()
		if ok {
			reply <- err
		}
	}
}

func (b *Bus) persist(msg *message.Message) error {
	gameCode := msg.Metadata.Get(metaGameCode)
	ctx, span := b.tracer.Start(b.ctx, "results.persist",
		trace.WithAttributes(
			attribute.String("messaging.system", "watermill"),
			attribute.String("messaging.destination", Topic),
			attribute.String("messaging.message_id", msg.UUID),
			attribute.String("game_code", gameCode),
		),
	)
	defer span.End()

	var result core.GameResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		err = oops.With("game_code", gameCode).Wrapf(err, "decode game result")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordResultPersisted("failed")
		return err
	}

	backoff := retry.WithMaxRetries(b.cfg.MaxRetries, retry.NewExponential(b.cfg.RetryBase))
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		saveCtx, cancel := context.WithTimeout(ctx, b.cfg.SaveTimeout)
		defer cancel()
		if err := b.store.Save(saveCtx, result); err != nil {
			slog.Warn("result store write failed",
				"game_code", result.GameCode,
				"result_id", result.ID.String(),
				"attempt", attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		err = oops.With("game_code", result.GameCode).
			With("result_id", result.ID.String()).
			With("attempts", attempts).
			Wrapf(err, "persist game result")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		errutil.LogError(slog.Default(), "giving up on game result", err)
		observability.RecordResultPersisted("failed")
		return err
	}

	observability.RecordResultPersisted("ok")
	slog.Debug("game result persisted",
		"game_code", result.GameCode,
		"result_id", result.ID.String(),
		"attempts", attempts,
	)
	return nil
}

// Close stops the subscriber. Hand-offs still waiting fail with
// RESULT_BUS_CLOSED.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	err := b.pubsub.Close()
	<-b.done

	b.mu.Lock()
	for id, reply := range b.pending {
		reply <- oops.Code(CodeBusClosed).Errorf("result bus closed before the result was persisted")
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if err != nil {
		return oops.Wrapf(err, "close result bus")
	}
	return nil
}
