// Package submission turns one contact-form payload into a stored message
// and an operator notification.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"contact-service/internal/metrics"
	"contact-service/internal/model"
	"contact-service/internal/notify"
	"contact-service/internal/storage"
)

const (
	SuccessMessage = "Message received and email sent successfully"
	FailureMessage = "Server error, please try again"
)

var (
	// ErrPersistence marks outcomes that stopped at the store.
	ErrPersistence = errors.New("persistence failure")
	// ErrDelivery marks outcomes whose record was stored but whose
	// notification could not be sent.
	ErrDelivery = errors.New("delivery failure")
)

// Store persists a candidate message, assigning its ID and timestamp.
type Store interface {
	Save(ctx context.Context, m *model.ContactMessage) error
}

// Notifier sends the operator email for a stored message.
type Notifier interface {
	Send(ctx context.Context, m *model.ContactMessage) error
}

// Payload is the raw form input. Every field is optional.
type Payload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Config bounds the two blocking steps.
type Config struct {
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

// Outcome is the single result of HandleSubmission. Callers only need
// Success and Message; Stage and Err say where and why it stopped.
type Outcome struct {
	Success bool
	Message string
	Stage   Stage
	Err     error
	// Record is set once the message has been stored, including when the
	// notification afterwards failed.
	Record *model.ContactMessage
}

type Pipeline struct {
	store    Store
	notifier Notifier
	cfg      Config
	log      zerolog.Logger
	tracer   trace.Tracer
}

func NewPipeline(store Store, notifier Notifier, cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.With().Str("component", "submission").Logger(),
		tracer:   otel.Tracer("contact-service/submission"),
	}
}

// HandleSubmission stores the payload and then notifies the operator.
//
// The store is the only gate: a failed save ends the submission without a
// notification. A failed notification does not undo the save, so the
// message stays stored while the caller sees the same failure outcome as
// for a failed save. Neither step is retried.
func (p *Pipeline) HandleSubmission(ctx context.Context, in Payload) Outcome {
	ctx, span := p.tracer.Start(ctx, "submission.handle")
	defer span.End()

	logger := p.log
	stage := Received

	// No field is required and nothing is trimmed or escaped.
	stage = stage.advance(Validating)
	candidate := &model.ContactMessage{
		Name:    in.Name,
		Email:   in.Email,
		Message: in.Message,
	}

	stage = stage.advance(Persisting)
	if err := p.persist(ctx, candidate); err != nil {
		stage = stage.advance(PersistFailed)
		return p.fail(span, logger, stage, fmt.Errorf("%w: %w", ErrPersistence, err), nil)
	}
	stage = stage.advance(Persisted)
	logger = logger.With().Str("message_id", candidate.ID).Logger()
	logger.Debug().Msg("message saved")

	stage = stage.advance(Notifying)
	if err := p.notify(ctx, candidate); err != nil {
		stage = stage.advance(NotifyFailed)
		return p.fail(span, logger, stage, fmt.Errorf("%w: %w", ErrDelivery, err), candidate)
	}
	stage = stage.advance(Completed)

	metrics.Submissions.WithLabelValues(stage.String()).Inc()
	span.SetAttributes(attribute.String("submission.stage", stage.String()))
	logger.Info().Str("stage", stage.String()).Msg("message received and email sent")

	return Outcome{
		Success: true,
		Message: SuccessMessage,
		Stage:   stage,
		Record:  candidate,
	}
}

func (p *Pipeline) persist(ctx context.Context, m *model.ContactMessage) error {
	return p.step(ctx, "persist", p.cfg.StoreTimeout, storage.ErrUnavailable, func(ctx context.Context) error {
		return p.store.Save(ctx, m)
	})
}

func (p *Pipeline) notify(ctx context.Context, m *model.ContactMessage) error {
	return p.step(ctx, "notify", p.cfg.NotifyTimeout, notify.ErrDelivery, func(ctx context.Context) error {
		return p.notifier.Send(ctx, m)
	})
}

// step runs fn under its own span and timeout. A timeout that the
// collaborator did not classify itself is reported as onTimeout.
func (p *Pipeline) step(ctx context.Context, name string, timeout time.Duration, onTimeout error, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "submission."+name)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, onTimeout) {
		err = fmt.Errorf("%w: %w", onTimeout, err)
	}

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	metrics.StepDuration.WithLabelValues(name, result).Observe(time.Since(start).Seconds())
	return err
}

func (p *Pipeline) fail(span trace.Span, logger zerolog.Logger, stage Stage, err error, stored *model.ContactMessage) Outcome {
	metrics.Submissions.WithLabelValues(stage.String()).Inc()
	span.SetAttributes(attribute.String("submission.stage", stage.String()))
	span.SetStatus(codes.Error, stage.String())

	event := logger.Error().Err(err).Str("stage", stage.String())
	if stored != nil {
		// Nothing compensates for this; the stored row is the only trace.
		event = event.Bool("stored_without_notification", true)
	}
	event.Msg("submission failed")

	return Outcome{
		Success: false,
		Message: FailureMessage,
		Stage:   stage,
		Err:     err,
		Record:  stored,
	}
}
