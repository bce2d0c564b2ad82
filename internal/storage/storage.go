package storage

import "stablePool/internal/model"

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// EventRecorder receives pool events. pool.EventSink has the same shape.
type EventRecorder interface {
	Record(event model.PoolEvent) error
}
