package schema

// Report is the document written by `webpconv --report`.
type Report struct {
	RunID             string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Bucket            string          `json:"bucket" yaml:"bucket"`
	Prefix            string          `json:"prefix" yaml:"prefix"`
	DestinationPrefix string          `json:"destination_prefix" yaml:"destination_prefix"`
	Quality           int             `json:"quality" yaml:"quality"`
	DeleteOriginal    bool            `json:"delete_original" yaml:"delete_original"`
	DryRun            bool            `json:"dry_run" yaml:"dry_run"`
	Summary           *ReportSummary  `json:"summary,omitempty" yaml:"summary,omitempty"`
	Failures          []ReportFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Mappings          []KeyMapping    `json:"mappings,omitempty" yaml:"mappings,omitempty"`
}

type ReportSummary struct {
	TotalFiles         int     `json:"total_files" yaml:"total_files"`
	Succeeded          int     `json:"succeeded" yaml:"succeeded"`
	Failed             int     `json:"failed" yaml:"failed"`
	Skipped            int     `json:"skipped" yaml:"skipped"`
	StartedAt          string  `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt         string  `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	ElapsedSeconds     float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	AverageSeconds     float64 `json:"average_seconds_per_file" yaml:"average_seconds_per_file"`
	OriginalBytes      int64   `json:"original_bytes" yaml:"original_bytes"`
	ConvertedBytes     int64   `json:"converted_bytes" yaml:"converted_bytes"`
	SavedBytes         int64   `json:"saved_bytes" yaml:"saved_bytes"`
	CompressionPercent float64 `json:"compression_percent" yaml:"compression_percent"`
}

type ReportFailure struct {
	SourceKey   string          `json:"source_key" yaml:"source_key"`
	Stage       ProcessingStage `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error       string          `json:"error" yaml:"error"`
	FailureType FailureType     `json:"failure_type,omitempty" yaml:"failure_type,omitempty"`
}

type KeyMapping struct {
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
}
