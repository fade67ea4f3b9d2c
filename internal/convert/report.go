package convert

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tendant/simple-webp/pkg/schema"
)

// Summary aggregates a Result for display. Byte totals cover converted
// outcomes only.
type Summary struct {
	TotalFiles int
	Succeeded  int
	Failed     int
	Skipped    int

	Elapsed        time.Duration
	AveragePerFile time.Duration

	OriginalBytes  int64
	ConvertedBytes int64
	SavedBytes     int64
	// CompressionPercent is meaningful only when OriginalBytes > 0.
	CompressionPercent float64

	Failures []Outcome
}

func (r Result) Summary() Summary {
	s := Summary{
		TotalFiles: r.Stats.TotalFiles,
		Succeeded:  r.Stats.Succeeded,
		Failed:     r.Stats.Failed,
		Skipped:    r.Stats.Skipped,
		Elapsed:    r.Stats.Elapsed(),
	}
	if s.TotalFiles > 0 {
		s.AveragePerFile = s.Elapsed / time.Duration(s.TotalFiles)
	}
	for _, o := range r.Outcomes {
		switch {
		case o.Converted():
			s.OriginalBytes += o.OriginalSize
			s.ConvertedBytes += o.ConvertedSize
		case o.Failed():
			s.Failures = append(s.Failures, o)
		}
	}
	s.SavedBytes = s.OriginalBytes - s.ConvertedBytes
	if s.OriginalBytes > 0 {
		s.CompressionPercent = float64(s.SavedBytes) / float64(s.OriginalBytes) * 100
	}
	return s
}

// Err joins the errors of failed outcomes, or returns nil.
func (r Result) Err() error {
	var result *multierror.Error
	for _, o := range r.Outcomes {
		if o.Failed() {
			result = multierror.Append(result, fmt.Errorf("%s: %s", o.SourceKey, o.Error))
		}
	}
	return result.ErrorOrNil()
}

// Report fills the summary and failure sections of base.
func (r Result) Report(base schema.Report) schema.Report {
	s := r.Summary()
	base.RunID = r.RunID
	base.Summary = &schema.ReportSummary{
		TotalFiles:         s.TotalFiles,
		Succeeded:          s.Succeeded,
		Failed:             s.Failed,
		Skipped:            s.Skipped,
		ElapsedSeconds:     s.Elapsed.Seconds(),
		AverageSeconds:     s.AveragePerFile.Seconds(),
		OriginalBytes:      s.OriginalBytes,
		ConvertedBytes:     s.ConvertedBytes,
		SavedBytes:         s.SavedBytes,
		CompressionPercent: s.CompressionPercent,
	}
	if !r.Stats.StartTime.IsZero() {
		base.Summary.StartedAt = r.Stats.StartTime.UTC().Format(time.RFC3339)
	}
	if !r.Stats.EndTime.IsZero() {
		base.Summary.FinishedAt = r.Stats.EndTime.UTC().Format(time.RFC3339)
	}
	for _, o := range s.Failures {
		base.Failures = append(base.Failures, schema.ReportFailure{
			SourceKey:   o.SourceKey,
			Stage:       o.Stage,
			Error:       o.Error,
			FailureType: o.FailureType,
		})
	}
	return base
}
