// Package measurement records typed messages into a multi-channel,
// timestamped log and replays them lazily.
//
// A Writer appends entries to named channels and rolls over to a new
// physical file once the configured size is reached. A Measurement opens
// the result for reading; Channel views decode payloads only when an entry
// is accessed.
package measurement

import (
	"github.com/drblury/protomeas/internal/runtime/config"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/metrics"
	"github.com/drblury/protomeas/internal/runtime/storage"
	"github.com/drblury/protomeas/internal/runtime/storage/sqlite"
)

// Option configures Open and Create.
type Option func(*options)

type options struct {
	log            logging.ServiceLogger
	metrics        *metrics.Measurement
	engine         storage.Engine
	baseName       string
	maxSizePerFile int64
}

// WithLogger sets the logger.
func WithLogger(log logging.ServiceLogger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records appended entries and file splits.
func WithMetrics(m *metrics.Measurement) Option {
	return func(o *options) { o.metrics = m }
}

// WithEngine replaces the default SQLite engine. The engine must not be
// opened yet.
func WithEngine(e storage.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithFileBaseName names the files of a new measurement, or selects one
// measurement when several share a directory.
func WithFileBaseName(name string) Option {
	return func(o *options) { o.baseName = name }
}

// WithMaxSizePerFile sets the payload volume after which a writer starts a
// new file.
func WithMaxSizePerFile(size int64) Option {
	return func(o *options) { o.maxSizePerFile = size }
}

// WithConfig applies the measurement section of conf.
func WithConfig(conf *config.Config) Option {
	return func(o *options) {
		if conf == nil {
			return
		}
		if conf.MeasurementBaseName != "" {
			o.baseName = conf.MeasurementBaseName
		}
		if conf.MeasurementMaxSizePerFile > 0 {
			o.maxSizePerFile = conf.MeasurementMaxSizePerFile
		}
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logging.Component(o.log, "measurement")
	if o.engine == nil {
		o.engine = sqlite.New(sqlite.WithLogger(o.log), sqlite.WithMetrics(o.metrics))
	}
	if o.baseName != "" {
		o.engine.SetFileBaseName(o.baseName)
	}
	if o.maxSizePerFile > 0 {
		o.engine.SetMaxSizePerFile(o.maxSizePerFile)
	}
	return o
}
