package storage

import (
	"go.uber.org/multierr"

	"stablePool/internal/dex"
	"stablePool/internal/model"
)

// MultiSink fans one event out to several recorders. Every recorder sees the
// event even when an earlier one fails.
type MultiSink []EventRecorder

func (m MultiSink) Record(event model.PoolEvent) error {
	var err error
	for _, recorder := range m {
		if recorder == nil {
			continue
		}
		err = multierr.Append(err, recorder.Record(event))
	}
	return err
}

// LogSink records events in their EVM log encoding.
type LogSink struct {
	Out Storage
}

func (s LogSink) Record(event model.PoolEvent) error {
	log, err := dex.EncodeEvent(event)
	if err != nil {
		return err
	}
	return s.Out.PutLogBatch([]model.LogRecord{log})
}
