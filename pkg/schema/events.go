// pkg/schema/events.go
package schema

// ProcessingStage names the step of a conversion task. Failed outcomes carry
// the stage that failed.
type ProcessingStage string

const (
	StageProbe   ProcessingStage = "probe"
	StageFetch   ProcessingStage = "fetch"
	StageConvert ProcessingStage = "convert"
	StageUpload  ProcessingStage = "upload"
)

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// ConversionEvent is published once per processed key.
type ConversionEvent struct {
	RunID            string          `json:"run_id" yaml:"run_id"`
	Bucket           string          `json:"bucket" yaml:"bucket"`
	SourceKey        string          `json:"source_key" yaml:"source_key"`
	DestinationKey   string          `json:"destination_key" yaml:"destination_key"`
	Status           string          `json:"status" yaml:"status"`
	OriginalSize     int64           `json:"original_size" yaml:"original_size"`
	ConvertedSize    int64           `json:"converted_size" yaml:"converted_size"`
	CompressionRatio *float64        `json:"compression_ratio,omitempty" yaml:"compression_ratio,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms" yaml:"processing_time_ms"`
	Stage            ProcessingStage `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error            string          `json:"error,omitempty" yaml:"error,omitempty"`
	FailureType      FailureType     `json:"failure_type,omitempty" yaml:"failure_type,omitempty"`
	HappenedAt       int64           `json:"happened_at" yaml:"happened_at"`
}

// BatchDone is published when every key of a run has an outcome.
type BatchDone struct {
	RunID             string `json:"run_id" yaml:"run_id"`
	Bucket            string `json:"bucket" yaml:"bucket"`
	Prefix            string `json:"prefix" yaml:"prefix"`
	DestinationPrefix string `json:"destination_prefix" yaml:"destination_prefix"`
	TotalFiles        int    `json:"total_files" yaml:"total_files"`
	Succeeded         int    `json:"succeeded" yaml:"succeeded"`
	Failed            int    `json:"failed" yaml:"failed"`
	Skipped           int    `json:"skipped" yaml:"skipped"`
	OriginalBytes     int64  `json:"original_bytes" yaml:"original_bytes"`
	ConvertedBytes    int64  `json:"converted_bytes" yaml:"converted_bytes"`
	ProcessingTimeMs  int64  `json:"processing_time_ms" yaml:"processing_time_ms"`
	HappenedAt        int64  `json:"happened_at" yaml:"happened_at"`
}
