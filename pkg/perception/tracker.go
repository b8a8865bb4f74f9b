package perception

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-temi/pkg/metrics"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/wait"
)

// DefaultInterval is the sampling interval.
const DefaultInterval = 500 * time.Millisecond

// Sample is one reading of the detection stream.
type Sample struct {
	Detected   bool      `json:"detected"`
	Angle      float64   `json:"angle"`
	Distance   float64   `json:"distance"`
	ObservedAt time.Time `json:"observed_at"`
}

func (s Sample) sameReading(o Sample) bool {
	return s.Detected == o.Detected && s.Angle == o.Angle && s.Distance == o.Distance
}

// Snapshot is the published classification of the latest sample.
// Generation increases with every published snapshot.
type Snapshot struct {
	Sample     Sample         `json:"sample"`
	Range      DistanceBucket `json:"range"`
	Bearing    AngleBucket    `json:"bearing"`
	Lateral    LateralMotion  `json:"lateral"`
	Depth      DepthMotion    `json:"depth"`
	Generation uint64         `json:"generation"`
}

// Config configures a Tracker.
type Config struct {
	Interval   time.Duration
	Thresholds Thresholds
	// Signal is notified after each publish. Defaults to the telemetry signal.
	Signal *wait.Signal
	Logger *slog.Logger
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		Interval:   DefaultInterval,
		Thresholds: DefaultThresholds(),
	}
}

// Tracker samples robot telemetry and publishes classifications.
// Step must only be called from one goroutine; Snapshot is safe from any.
type Tracker struct {
	cfg    Config
	source robot.Telemetry
	logger *slog.Logger

	current atomic.Pointer[Snapshot]
}

// NewTracker creates a Tracker reading from source.
func NewTracker(source robot.Telemetry, cfg Config) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.Signal == nil {
		cfg.Signal = source.Signal()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	t := &Tracker{
		cfg:    cfg,
		source: source,
		logger: cfg.Logger.With("component", "perception.Tracker"),
	}
	t.current.Store(&Snapshot{})
	return t
}

// Run samples once per interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Debug("tracker started", "interval", t.cfg.Interval)
	for {
		detected := t.source.DetectionStatus() == robot.DetectionDetected
		if err := wait.Sleep(ctx, t.cfg.Interval); err != nil {
			return err
		}
		d := t.source.Detection()
		t.Step(Sample{
			Detected:   detected,
			Angle:      d.Angle,
			Distance:   d.Distance,
			ObservedAt: time.Now(),
		})
	}
}

// Step classifies a sample against the previous one and publishes the result.
// Motion is only re-derived when both samples are detections and the reading
// changed; otherwise the previous motion is kept.
func (t *Tracker) Step(s Sample) Snapshot {
	prev := t.current.Load()
	th := t.cfg.Thresholds

	next := Snapshot{
		Sample:     s,
		Range:      th.Range(s.Detected, s.Distance),
		Bearing:    th.Bearing(s.Detected, s.Angle),
		Lateral:    prev.Lateral,
		Depth:      prev.Depth,
		Generation: prev.Generation + 1,
	}

	if s.Detected && prev.Sample.Detected && !s.sameReading(prev.Sample) {
		next.Lateral = th.Lateral(next.Range, s.Angle-prev.Sample.Angle)
		next.Depth = th.Depth(s.Distance - prev.Sample.Distance)
	}

	if next.Range != prev.Range {
		t.logger.Debug("range changed", "from", prev.Range.String(), "to", next.Range.String())
	}
	metrics.PerceptionSamples.WithLabelValues(next.Range.String()).Inc()

	t.current.Store(&next)
	t.cfg.Signal.Notify()
	return next
}

// Snapshot returns the latest published classification.
func (t *Tracker) Snapshot() Snapshot {
	return *t.current.Load()
}

// Range returns the latest distance bucket.
func (t *Tracker) Range() DistanceBucket {
	return t.current.Load().Range
}

// Bearing returns the latest angle bucket.
func (t *Tracker) Bearing() AngleBucket {
	return t.current.Load().Bearing
}

// Present reports whether the latest sample was a detection.
func (t *Tracker) Present() bool {
	return t.Range() != Missing
}

// Thresholds returns the classification thresholds in use.
func (t *Tracker) Thresholds() Thresholds {
	return t.cfg.Thresholds
}
