package kq

import (
	"context"
	"math"
	"time"
)

// Access is the direction of an authorization request.
type Access string

const (
	AccessRead  Access = "read"
	AccessWrite Access = "write"
)

// Sample is one health measurement. Value is always in the metric's
// canonical unit. A point-in-time sample has Start == End.
type Sample struct {
	ID        string
	Metric    Metric
	Value     float64
	Start     time.Time
	End       time.Time
	Source    string
	CreatedAt time.Time
}

// Sample times are stored as Unix nanoseconds, which bounds them to
// roughly 1678 through 2262.
var (
	MinSampleTime = time.Unix(0, math.MinInt64).UTC()
	MaxSampleTime = time.Unix(0, math.MaxInt64).UTC()
)

// InSampleRange reports whether t can be stored without loss.
func InSampleRange(t time.Time) bool {
	return !t.Before(MinSampleTime) && !t.After(MaxSampleTime)
}

// clampSampleTime limits a query bound to the storable range.
func clampSampleTime(t time.Time) time.Time {
	switch {
	case t.Before(MinSampleTime):
		return MinSampleTime
	case t.After(MaxSampleTime):
		return MaxSampleTime
	}
	return t
}

// HealthStore persists typed health samples and the authorization grants
// made against them.
type HealthStore interface {
	// IsAvailable reports whether health data is supported at all.
	IsAvailable() bool

	// RequestAuthorization records a request for the given access sets and
	// reports whether the request completed. It does not reveal whether
	// read access was actually granted.
	RequestAuthorization(ctx context.Context, write, read []Metric) (bool, error)

	// IsAuthorized reports whether access to metric has been requested.
	IsAuthorized(ctx context.Context, metric Metric, access Access) (bool, error)

	// Save stores all samples or none of them. Samples whose ID already
	// exists are ignored.
	Save(ctx context.Context, samples []Sample) error

	// Query returns samples of metric whose start lies in [start, end],
	// ordered by start ascending.
	Query(ctx context.Context, metric Metric, start, end time.Time) ([]Sample, error)

	// Close releases the underlying storage.
	Close() error
}

// OperationRecord is one entry of the persisted command history.
type OperationRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Operation  string
	Parameters string
	Status     string
}

// OperationLog records mutating commands run against a store.
type OperationLog interface {
	CreateOperation(ctx context.Context, operation, parameters string) (*OperationRecord, error)
	FinishOperation(ctx context.Context, id int64, status string) error
	ListOperations(ctx context.Context, limit int) ([]*OperationRecord, error)
}
