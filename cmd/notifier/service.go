package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/sourcing-engine/internal/notifications"
	"github.com/angelmondragon/sourcing-engine/pkg/config"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/metrics"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox/payloads"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 2 * time.Second
	defaultSendTimeout = 15 * time.Second
	defaultMaxAttempts = 10
	maxBackoff         = time.Minute
	jitterWindow       = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	MarkDead(ctx context.Context, id uuid.UUID, cause error, attempts int) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type ServiceParams struct {
	Config     config.NotifierConfig
	Logger     *logger.Logger
	DB         dbClient
	Repository outboxRepository
	Decoder    payloadDecoder
	Sender     notifications.Sender
	Metrics    *metrics.NotificationMetrics
}

// Service relays queued notification events to the mail sender. Delivery is
// at-least-once: a crash between send and mark re-sends the message.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	decoder      payloadDecoder
	sender       notifications.Sender
	metrics      *metrics.NotificationMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	sendTimeout  time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Decoder == nil {
		return nil, errors.New("payload decoder is required")
	}
	if params.Sender == nil {
		return nil, errors.New("sender is required")
	}

	cfg := params.Config
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPoll
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		decoder:      params.Decoder,
		sender:       params.Sender,
		metrics:      params.Metrics,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: poll,
		sendTimeout:  sendTimeout,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "notifier context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "notifier batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = s.pollInterval
		if processed {
			continue
		}
		if err := sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// processBatch handles one page of pending events. It reports whether any
// event was seen; bookkeeping failures are combined into the returned error.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	events, err := s.repo.FetchUnpublished(ctx, s.batchSize, s.maxAttempts)
	if err != nil {
		return false, fmt.Errorf("fetch unpublished: %w", err)
	}
	if len(events) == 0 {
		return false, nil
	}

	var errs error
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		errs = multierr.Append(errs, s.deliver(ctx, event))
	}
	return true, errs
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) error {
	fields := eventFields(event)
	notification, err := s.decode(event)
	if err != nil {
		logCtx := s.logg.WithFields(ctx, fields)
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "notification payload unreadable; giving up")
		s.metrics.IncFailed("undecodable")
		if markErr := s.repo.MarkDead(ctx, event.ID, err, s.maxAttempts); markErr != nil {
			return fmt.Errorf("mark dead %s: %w", event.ID, markErr)
		}
		return nil
	}
	kind := string(notification.Kind)
	fields["kind"] = kind
	logCtx := s.logg.WithFields(ctx, fields)

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	sendErr := s.sender.Send(sendCtx, notifications.ToMessage(notification))
	cancel()

	if sendErr != nil {
		s.metrics.IncFailed(kind)
		nextAttempt := event.AttemptCount + 1
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"attempt_count": nextAttempt,
			"error":         sendErr.Error(),
		})
		if nextAttempt >= s.maxAttempts {
			s.logg.Error(logCtx, "notification abandoned after max attempts", sendErr)
		} else {
			s.logg.Warn(logCtx, "notification send failed")
		}
		if markErr := s.repo.MarkFailed(ctx, event.ID, sendErr); markErr != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, markErr)
		}
		return nil
	}

	s.metrics.IncSent(kind)
	if markErr := s.repo.MarkPublished(ctx, event.ID); markErr != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, markErr)
	}
	s.logg.Info(logCtx, "notification sent")
	return nil
}

func (s *Service) decode(event models.OutboxEvent) (payloads.NotificationRequestedEvent, error) {
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return payloads.NotificationRequestedEvent{}, fmt.Errorf("decode envelope: %w", err)
	}
	decoded, err := s.decoder.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return payloads.NotificationRequestedEvent{}, err
	}
	notification, ok := decoded.(payloads.NotificationRequestedEvent)
	if !ok {
		return payloads.NotificationRequestedEvent{}, fmt.Errorf("unexpected payload %T for %s", decoded, event.EventType)
	}
	return notification, nil
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
