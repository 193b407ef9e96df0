package emitter

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"netharness/internal/model"
)

// Appender is the write side of a log store.
type Appender interface {
	Append(rec model.MetricRecord) error
}

// Emitter stamps measurements and appends them to the log.
type Emitter struct {
	store Appender
	now   func() time.Time
}

func New(store Appender) *Emitter {
	return &Emitter{store: store, now: time.Now}
}

// WithClock replaces the wall clock used to stamp records.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

// Emit appends one record stamped with the time of the call, not of the
// test start. An empty proxy is recorded as model.NoProxy.
func (e *Emitter) Emit(category model.Category, destination, proxy, metric, value string) error {
	if proxy == "" {
		proxy = model.NoProxy
	}
	if value == "" {
		value = model.NotAvailable
	}
	rec := model.MetricRecord{
		Timestamp:   e.now().Format(model.TimestampLayout),
		Category:    category,
		Destination: destination,
		Proxy:       proxy,
		Metric:      metric,
		Value:       value,
	}
	if err := e.store.Append(rec); err != nil {
		return errors.Wrapf(err, "emit %s/%s", category, metric)
	}
	log.Info().
		Str("test_type", string(category)).
		Str("metric", metric).
		Str("value", value).
		Str("destination", destination).
		Msg("recorded")
	return nil
}
