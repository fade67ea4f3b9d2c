package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-webp/internal/img"
	"github.com/tendant/simple-webp/internal/process"
	"github.com/tendant/simple-webp/internal/storage"
	"github.com/tendant/simple-webp/pkg/schema"
)

const progressEvery = 10

// Notifier receives conversion events. Implementations must tolerate being
// called from a single goroutine for the lifetime of a run.
type Notifier interface {
	NotifyOutcome(ctx context.Context, ev schema.ConversionEvent) error
	NotifyBatch(ctx context.Context, done schema.BatchDone) error
}

// Converter lists images in a store and converts them to WebP.
type Converter struct {
	opts       Options
	store      storage.Store
	transcoder img.Transcoder
	logger     *slog.Logger
	notifier   Notifier
}

// New returns a Converter. logger and notifier may be nil.
func New(opts Options, store storage.Store, transcoder img.Transcoder, logger *slog.Logger, notifier Notifier) *Converter {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		opts:       opts,
		store:      store,
		transcoder: transcoder,
		logger:     logger,
		notifier:   notifier,
	}
}

// ImageKeys lists the configured prefix and keeps keys with a supported
// image extension, in store order.
func (c *Converter) ImageKeys(ctx context.Context) ([]string, error) {
	objects, err := c.store.List(ctx, c.opts.Prefix)
	if err != nil {
		c.logger.Error("error getting image keys", "prefix", c.opts.Prefix, "err", err)
		if !errors.Is(err, storage.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("failed to get image keys: %w", err)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if c.transcoder.Supports(obj.Key) {
			keys = append(keys, obj.Key)
		}
	}
	c.logger.Info("found image files in bucket", "count", len(keys), "listed", len(objects), "prefix", c.opts.Prefix)
	return keys, nil
}

// Plan returns the source to destination mapping a run would use, without
// touching any object.
func (c *Converter) Plan(ctx context.Context) ([]schema.KeyMapping, error) {
	keys, err := c.ImageKeys(ctx)
	if err != nil {
		return nil, err
	}
	mappings := make([]schema.KeyMapping, 0, len(keys))
	for _, k := range keys {
		mappings = append(mappings, schema.KeyMapping{
			Source:      k,
			Destination: DestinationKey(k, c.opts.DestinationPrefix),
		})
	}
	return mappings, nil
}

// ConvertAll enumerates the configured prefix and converts every image. Only
// enumeration failures are returned as errors.
func (c *Converter) ConvertAll(ctx context.Context) (Result, error) {
	keys, err := c.ImageKeys(ctx)
	if err != nil {
		return Result{}, err
	}
	return c.Run(ctx, keys), nil
}

// Run converts keys on a pool of at most MaxWorkers goroutines and returns
// once every key has a terminal outcome.
func (c *Converter) Run(ctx context.Context, keys []string) Result {
	res := Result{RunID: uuid.NewString(), Outcomes: []Outcome{}}
	log := c.logger.With("run_id", res.RunID)

	if len(keys) == 0 {
		log.Warn("no images found to convert")
		return res
	}

	batch := process.NewBatch(res.RunID)
	_ = process.StartBatch(batch)
	res.Stats.TotalFiles = len(keys)
	res.Stats.StartTime = time.Now()
	res.Outcomes = make([]Outcome, 0, len(keys))
	log.Info("starting conversion", "images", len(keys), "workers", c.opts.MaxWorkers)

	outcomes := make(chan Outcome, c.opts.MaxWorkers)
	collected := make(chan struct{})

	// The collector is the only writer of res.Outcomes and res.Stats.
	go func() {
		defer close(collected)
		for o := range outcomes {
			res.Outcomes = append(res.Outcomes, o)
			res.Stats.record(o)
			recordOutcome(ctx, o)
			c.notifyOutcome(ctx, log, res.RunID, o)
			if res.Stats.Processed%progressEvery == 0 {
				log.Info("progress",
					"processed", res.Stats.Processed,
					"total", res.Stats.TotalFiles,
					"percent", fmt.Sprintf("%.1f", float64(res.Stats.Processed)/float64(res.Stats.TotalFiles)*100),
				)
			}
		}
	}()

	// Task failures are outcomes, never group errors, so no task cancels
	// its siblings.
	var g errgroup.Group
	g.SetLimit(c.opts.MaxWorkers)
	for _, key := range keys {
		g.Go(func() error {
			outcomes <- c.safeConvertOne(ctx, log, key)
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	<-collected

	res.Stats.EndTime = time.Now()
	_ = process.CompleteBatch(batch)
	logFinalStats(log, res)
	c.notifyBatch(ctx, log, res)
	return res
}

// safeConvertOne turns a panic inside a task into a failed outcome.
func (c *Converter) safeConvertOne(ctx context.Context, log *slog.Logger, key string) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrPanic, r)
			log.Error("unexpected error processing key", "source_key", key, "err", err, "stack", string(debug.Stack()))
			out = Outcome{
				SourceKey:      key,
				DestinationKey: DestinationKey(key, c.opts.DestinationPrefix),
				Status:         process.TaskStatusFailed,
				Error:          err.Error(),
				FailureType:    classifyFailure(err),
				Duration:       time.Since(start),
			}
		}
	}()
	return c.ConvertOne(ctx, key)
}

// ConvertOne converts a single key. It never returns an error; every
// failure is captured in the outcome.
func (c *Converter) ConvertOne(ctx context.Context, key string) Outcome {
	start := time.Now()
	ctx, span := startTaskSpan(ctx, key)
	defer span.End()

	out := Outcome{SourceKey: key, DestinationKey: DestinationKey(key, c.opts.DestinationPrefix)}
	log := c.logger.With("source_key", key, "destination_key", out.DestinationKey)

	task := process.NewTask(key)
	_ = process.MarkRunning(task)

	if stage, err := c.convert(ctx, log, task, &out); err != nil {
		_ = process.MarkFailed(task, err)
		out.Error = err.Error()
		out.Stage = stage
		out.FailureType = classifyFailure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		log.Error("failed to convert", "stage", stage, "failure_type", out.FailureType, "err", err)
	}

	out.Status = task.Status
	out.Duration = time.Since(start)
	return out
}

func (c *Converter) convert(ctx context.Context, log *slog.Logger, task *process.Task, out *Outcome) (schema.ProcessingStage, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("not started: %w", err)
	}

	presence, err := c.store.Probe(ctx, out.DestinationKey)
	switch presence {
	case storage.Exists:
		log.Info("webp already exists, skipping")
		return "", process.MarkSkipped(task)
	case storage.ProbeError:
		if !c.opts.ProceedOnProbeError {
			return schema.StageProbe, fmt.Errorf("check destination %s: %w", out.DestinationKey, err)
		}
		log.Warn("destination check failed, converting anyway", "err", err)
	}

	data, err := c.store.Get(ctx, task.Key)
	if err != nil {
		return schema.StageFetch, fmt.Errorf("fetch %s: %w", task.Key, err)
	}
	out.OriginalSize = int64(len(data))

	webpData, err := c.transcoder.ToWebP(ctx, data, c.opts.Quality)
	if err != nil {
		return schema.StageConvert, fmt.Errorf("convert %s: %w", task.Key, err)
	}
	out.ConvertedSize = int64(len(webpData))
	out.CompressionRatio = compressionRatio(out.OriginalSize, out.ConvertedSize)

	if err := c.store.Put(ctx, out.DestinationKey, webpData, img.ContentTypeWebP); err != nil {
		return schema.StageUpload, fmt.Errorf("%w %s: %w", ErrWrite, out.DestinationKey, err)
	}

	if c.opts.DeleteOriginal {
		if err := c.store.Delete(ctx, task.Key); err != nil {
			log.Warn("failed to delete original file", "err", err)
		} else {
			log.Info("deleted original file")
		}
	}

	ratio := 0.0
	if out.CompressionRatio != nil {
		ratio = *out.CompressionRatio
	}
	log.Info("converted",
		"original_size", out.OriginalSize,
		"webp_size", out.ConvertedSize,
		"compression", fmt.Sprintf("%.1f%%", ratio),
	)
	return "", process.MarkConverted(task)
}

func (c *Converter) notifyOutcome(ctx context.Context, log *slog.Logger, runID string, o Outcome) {
	if c.notifier == nil {
		return
	}
	ev := schema.ConversionEvent{
		RunID:            runID,
		Bucket:           c.opts.Bucket,
		SourceKey:        o.SourceKey,
		DestinationKey:   o.DestinationKey,
		Status:           string(o.Status),
		OriginalSize:     o.OriginalSize,
		ConvertedSize:    o.ConvertedSize,
		CompressionRatio: o.CompressionRatio,
		ProcessingTimeMs: o.Duration.Milliseconds(),
		Stage:            o.Stage,
		Error:            o.Error,
		FailureType:      o.FailureType,
		HappenedAt:       time.Now().Unix(),
	}
	if err := c.notifier.NotifyOutcome(ctx, ev); err != nil {
		log.Warn("failed to publish conversion event", "source_key", o.SourceKey, "err", err)
	}
}

func (c *Converter) notifyBatch(ctx context.Context, log *slog.Logger, res Result) {
	if c.notifier == nil {
		return
	}
	s := res.Summary()
	done := schema.BatchDone{
		RunID:             res.RunID,
		Bucket:            c.opts.Bucket,
		Prefix:            c.opts.Prefix,
		DestinationPrefix: c.opts.DestinationPrefix,
		TotalFiles:        s.TotalFiles,
		Succeeded:         s.Succeeded,
		Failed:            s.Failed,
		Skipped:           s.Skipped,
		OriginalBytes:     s.OriginalBytes,
		ConvertedBytes:    s.ConvertedBytes,
		ProcessingTimeMs:  s.Elapsed.Milliseconds(),
		HappenedAt:        time.Now().Unix(),
	}
	if err := c.notifier.NotifyBatch(ctx, done); err != nil {
		log.Warn("failed to publish batch event", "err", err)
	}
}

func logFinalStats(log *slog.Logger, res Result) {
	s := res.Summary()
	log.Info("conversion completed",
		"total_files", s.TotalFiles,
		"successful", s.Succeeded,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"duration", fmt.Sprintf("%.2fs", s.Elapsed.Seconds()),
		"average_per_file", fmt.Sprintf("%.2fs", s.AveragePerFile.Seconds()),
	)
}
