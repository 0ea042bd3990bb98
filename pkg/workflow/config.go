package workflow

import (
	"context"
	"time"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/integration"
	"github.com/dd0wney/netharness/pkg/stats"
	"github.com/dd0wney/netharness/pkg/validation"
)

// Config holds executor settings.
type Config struct {
	// Slots bounds the replicates running at once.
	Slots int
	// PollInterval is how often the controller checks on a sweep point.
	PollInterval time.Duration
	// ReplicateTimeout cancels a replicate that runs longer; 0 disables it.
	ReplicateTimeout time.Duration
	// DistributionBins is the histogram resolution of probDistr files.
	DistributionBins int
	// ROCStep is the threshold step of roc files; 0 disables them.
	ROCStep float64
}

// DefaultConfig returns the standard executor settings.
func DefaultConfig() Config {
	return Config{
		Slots:            1,
		PollInterval:     200 * time.Millisecond,
		DistributionBins: stats.DefaultBins,
		ROCStep:          stats.DefaultROCStep,
	}
}

// ApplyDefaults fills zero fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	c.Slots = validation.DefaultOrInt(c.Slots, def.Slots)
	c.PollInterval = validation.DefaultOrDuration(c.PollInterval, def.PollInterval)
	c.DistributionBins = validation.DefaultOrInt(c.DistributionBins, def.DistributionBins)
}

// Validate checks the settings.
func (c *Config) Validate() error {
	return validation.NewConfigValidator("executor").
		Positive("slots", c.Slots).
		MinDuration("pollInterval", c.PollInterval, time.Millisecond).
		MinDuration("replicateTimeout", c.ReplicateTimeout, 0).
		Positive("distributionBins", c.DistributionBins).
		RangeFloat("rocStep", c.ROCStep, 0, 1).
		Validate()
}

// Sink receives result files and diagnostic streams.
type Sink interface {
	stats.ResultWriter
	integration.TraceSink
}

// Metrics is told about executor activity.
type Metrics interface {
	ReplicateFinished(status string, d time.Duration)
	SlotsInUse(n int)
	PointFinished(row Row)
	GraphAnomaly(kind graph.AnomalyKind)
}

// Checkpoints stores finished sweep points so an interrupted sweep can skip
// them when it is run again.
type Checkpoints interface {
	Load(ctx context.Context, digest string, point int) (Row, bool, error)
	Save(ctx context.Context, digest string, row Row) error
}

// RowRecorder is given every finished row, e.g. to store it in a database.
type RowRecorder interface {
	RecordRow(ctx context.Context, variables []string, row Row) error
}

// Progress is reported as a sweep advances.
type Progress struct {
	Point      int
	Points     int
	Variables  string
	Done       int // finished replicates of the current point
	Replicates int
	InUse      int
	Row        *Row // set once the point is finished
}

// replicate outcomes
const (
	statusOK       = "ok"
	statusError    = "error"
	statusCanceled = "canceled"
)

type discardSink struct{}

func (discardSink) WriteResults(string, string) error { return nil }
func (discardSink) WriteStream(string, string) error  { return nil }
func (discardSink) CloseStream(string) error          { return nil }
