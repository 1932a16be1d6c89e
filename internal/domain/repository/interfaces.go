package repository

import (
	"context"
	"time"

	"EffortLab/internal/domain/models"
)

// SignalSource supplies the next raw strength reading. It must not block
// longer than one device read.
type SignalSource interface {
	Sample() (float64, error)
}

// EventTrigger forwards markers to the recording equipment. Send must return
// immediately; delivery failures are the trigger's concern.
type EventTrigger interface {
	Send(m models.Marker)
}

// MarkerSink delivers one marker to the recording equipment. It may block
// up to ctx's deadline.
type MarkerSink interface {
	Deliver(ctx context.Context, e models.MarkerEvent) error
}

// Publisher streams trial records to a message bus.
type Publisher interface {
	Publish(ctx context.Context, r *models.TrialRecord) error
	PublishBatch(ctx context.Context, records []*models.TrialRecord) error
	Close() error
}

// Storage persists trial records for later analysis.
type Storage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, r *models.TrialRecord) error
	StoreBatch(ctx context.Context, records []*models.TrialRecord) error
	Query(ctx context.Context, participant string, from, to time.Time, limit int) ([]*models.TrialRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// CalibrationStore keeps one calibration artifact per participant session.
type CalibrationStore interface {
	Save(ctx context.Context, c *models.Calibration) error
	Lookup(ctx context.Context, participant string) (*models.Calibration, error)
}

// SessionStore holds session state between trials and serializes updates
// to a single session.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.SessionState, error)
	Put(ctx context.Context, s *models.SessionState) error
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

type Metrics interface {
	RecordTrial(action models.ActionType, result models.Result)
	RecordMarker(m models.Marker, delivered bool)
	RecordEstimate(k float64)
	RecordMessageSent(backend string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
