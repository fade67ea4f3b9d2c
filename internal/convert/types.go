package convert

import (
	"time"

	"github.com/tendant/simple-webp/internal/process"
	"github.com/tendant/simple-webp/pkg/schema"
)

// Options controls a Converter. Zero MaxWorkers means one worker.
type Options struct {
	Bucket            string
	Prefix            string
	DestinationPrefix string
	Quality           int
	DeleteOriginal    bool
	MaxWorkers        int

	// ProceedOnProbeError converts anyway when the destination existence
	// check fails instead of failing the item.
	ProceedOnProbeError bool
}

// Outcome is the terminal record of one source key.
type Outcome struct {
	SourceKey      string
	DestinationKey string
	Status         process.TaskStatus

	// Error, Stage and FailureType are set only when Status is failed.
	Error       string
	Stage       schema.ProcessingStage
	FailureType schema.FailureType

	OriginalSize  int64
	ConvertedSize int64
	// CompressionRatio is the percent size reduction, nil unless the
	// original size is known and non-zero.
	CompressionRatio *float64
	Duration         time.Duration
}

func (o Outcome) Converted() bool { return o.Status == process.TaskStatusConverted }
func (o Outcome) Skipped() bool   { return o.Status == process.TaskStatusSkipped }
func (o Outcome) Failed() bool    { return o.Status == process.TaskStatusFailed }

// Stats counts outcomes of a run. When a run completes
// Processed == TotalFiles == Succeeded+Failed+Skipped.
type Stats struct {
	TotalFiles int
	Processed  int
	Succeeded  int
	Failed     int
	Skipped    int
	StartTime  time.Time
	EndTime    time.Time
}

func (s *Stats) record(o Outcome) {
	s.Processed++
	switch o.Status {
	case process.TaskStatusConverted:
		s.Succeeded++
	case process.TaskStatusSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Elapsed is zero until the run has both start and end times.
func (s Stats) Elapsed() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Result is everything a run produced. Outcomes are in completion order.
type Result struct {
	RunID    string
	Outcomes []Outcome
	Stats    Stats
}

func compressionRatio(original, converted int64) *float64 {
	if original <= 0 {
		return nil
	}
	r := float64(original-converted) / float64(original) * 100
	return &r
}
