package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-webp/internal/img"
	"github.com/tendant/simple-webp/internal/process"
	"github.com/tendant/simple-webp/internal/storage"
	"github.com/tendant/simple-webp/pkg/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConverter(store storage.Store, tr img.Transcoder, opts Options) *Converter {
	if opts.MaxWorkers == 0 {
		opts.MaxWorkers = 4
	}
	if opts.Quality == 0 {
		opts.Quality = 100
	}
	return New(opts, store, tr, quietLogger(), nil)
}

func TestImageKeysFiltersInStoreOrder(t *testing.T) {
	store := newMemStore("b/z.png", "b/notes.txt", "a/y.JPG", "a/x.webp", "c/scan.tif", "noext")
	c := newTestConverter(store, &halfTranscoder{}, Options{})

	keys, err := c.ImageKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b/z.png", "a/y.JPG", "c/scan.tif"}, keys)
}

func TestImageKeysUsesPrefix(t *testing.T) {
	store := newMemStore("in/a.png", "out/b.png")
	c := newTestConverter(store, &halfTranscoder{}, Options{Prefix: "in/"})

	keys, err := c.ImageKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"in/a.png"}, keys)
}

func TestImageKeysEmpty(t *testing.T) {
	c := newTestConverter(newMemStore("readme.md"), &halfTranscoder{}, Options{})
	keys, err := c.ImageKeys(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestImageKeysListingFailure(t *testing.T) {
	store := newMemStore("a.png")
	store.listErr = errBoom
	c := newTestConverter(store, &halfTranscoder{}, Options{})

	_, err := c.ImageKeys(context.Background())
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	require.ErrorIs(t, err, errBoom)

	_, err = c.ConvertAll(context.Background())
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)

	_, err = c.Plan(context.Background())
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
}

func TestPlan(t *testing.T) {
	store := newMemStore("photos/a.png", "photos/b.jpeg", "photos/c.txt")
	c := newTestConverter(store, &halfTranscoder{}, Options{DestinationPrefix: "webp-images"})

	plan, err := c.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []schema.KeyMapping{
		{Source: "photos/a.png", Destination: "webp-images/a.webp"},
		{Source: "photos/b.jpeg", Destination: "webp-images/b.webp"},
	}, plan)
	assert.Empty(t, store.puts)
	assert.Empty(t, store.gets)
}

func TestConvertOneConverted(t *testing.T) {
	store := newMemStore("photos/a.png")
	c := newTestConverter(store, &halfTranscoder{}, Options{DestinationPrefix: "webp-images"})

	out := c.ConvertOne(context.Background(), "photos/a.png")

	assert.Equal(t, process.TaskStatusConverted, out.Status)
	assert.Equal(t, "webp-images/a.webp", out.DestinationKey)
	assert.Empty(t, out.Error)
	assert.Empty(t, out.FailureType)

	original := int64(len("source:photos/a.png"))
	assert.Equal(t, original, out.OriginalSize)
	assert.Equal(t, original/2, out.ConvertedSize)
	require.NotNil(t, out.CompressionRatio)
	assert.InDelta(t, float64(original-original/2)/float64(original)*100, *out.CompressionRatio, 1e-9)

	require.Len(t, store.puts, 1)
	assert.Equal(t, "webp-images/a.webp", store.puts[0].key)
	assert.Equal(t, "image/webp", store.puts[0].contentType)
	assert.True(t, store.has("photos/a.png"), "original kept when delete is off")
}

func TestConvertOneSkipsExistingDestination(t *testing.T) {
	store := newMemStore("photos/a.png")
	store.add("webp-images/a.webp", []byte{})
	tr := &halfTranscoder{}
	c := newTestConverter(store, tr, Options{DestinationPrefix: "webp-images"})

	out := c.ConvertOne(context.Background(), "photos/a.png")

	assert.Equal(t, process.TaskStatusSkipped, out.Status)
	assert.Empty(t, out.Error)
	assert.Zero(t, out.OriginalSize)
	assert.Zero(t, out.ConvertedSize)
	assert.Nil(t, out.CompressionRatio)
	assert.Empty(t, store.gets)
	assert.Zero(t, tr.calls.Load())
}

func TestConvertOneFetchFailure(t *testing.T) {
	store := newMemStore("a.png")
	store.getErr["a.png"] = errors.New("connection reset by peer")
	c := newTestConverter(store, &halfTranscoder{}, Options{})

	out := c.ConvertOne(context.Background(), "a.png")

	assert.Equal(t, process.TaskStatusFailed, out.Status)
	assert.Equal(t, schema.StageFetch, out.Stage)
	assert.Contains(t, out.Error, "connection reset by peer")
	assert.Equal(t, schema.FailureTypeRetryable, out.FailureType)
	assert.Zero(t, out.OriginalSize)
	assert.Empty(t, store.puts)
}

func TestConvertOneMissingSource(t *testing.T) {
	c := newTestConverter(newMemStore(), &halfTranscoder{}, Options{})
	out := c.ConvertOne(context.Background(), "gone.png")
	assert.True(t, out.Failed())
	assert.Equal(t, schema.FailureTypePermanent, out.FailureType)
}

func TestConvertOneDecodeFailure(t *testing.T) {
	store := newMemStore()
	store.add("bad.jpg", []byte("garbage"))
	c := newTestConverter(store, &halfTranscoder{}, Options{})

	out := c.ConvertOne(context.Background(), "bad.jpg")

	assert.True(t, out.Failed())
	assert.Equal(t, schema.StageConvert, out.Stage)
	assert.Equal(t, schema.FailureTypePermanent, out.FailureType)
	assert.Equal(t, int64(len("garbage")), out.OriginalSize)
}

func TestConvertOneWriteFailureKeepsSizes(t *testing.T) {
	store := newMemStore("a.png")
	store.putErr = errors.New("503 slow down")
	c := newTestConverter(store, &halfTranscoder{}, Options{DeleteOriginal: true})

	out := c.ConvertOne(context.Background(), "a.png")

	assert.True(t, out.Failed())
	assert.Equal(t, schema.StageUpload, out.Stage)
	assert.Contains(t, out.Error, "503 slow down")
	assert.NotZero(t, out.OriginalSize)
	assert.NotZero(t, out.ConvertedSize)
	assert.NotNil(t, out.CompressionRatio)
	assert.Empty(t, store.deletes, "original must survive a failed write")
}

func TestConvertOneDeletesOriginal(t *testing.T) {
	store := newMemStore("a.png")
	c := newTestConverter(store, &halfTranscoder{}, Options{DeleteOriginal: true})

	out := c.ConvertOne(context.Background(), "a.png")

	assert.True(t, out.Converted())
	assert.Equal(t, []string{"a.png"}, store.deletes)
	assert.False(t, store.has("a.png"))
	assert.True(t, store.has("a.webp"))
}

func TestConvertOneDeleteFailureStaysConverted(t *testing.T) {
	store := newMemStore("a.png")
	store.deleteErr = errors.New("access denied")
	c := newTestConverter(store, &halfTranscoder{}, Options{DeleteOriginal: true})

	out := c.ConvertOne(context.Background(), "a.png")

	assert.True(t, out.Converted())
	assert.Empty(t, out.Error)
	assert.Empty(t, out.Stage, "a failed delete is not a failed stage")
	assert.Empty(t, out.FailureType)
	assert.True(t, store.has("a.png"))
}

func TestConvertOneProbePolicy(t *testing.T) {
	t.Run("fail", func(t *testing.T) {
		store := newMemStore("a.png")
		store.probeErr = errors.New("timeout")
		c := newTestConverter(store, &halfTranscoder{}, Options{})

		out := c.ConvertOne(context.Background(), "a.png")
		assert.True(t, out.Failed())
		assert.Equal(t, schema.StageProbe, out.Stage)
		assert.Empty(t, store.gets)
	})

	t.Run("proceed", func(t *testing.T) {
		store := newMemStore("a.png")
		store.probeErr = errors.New("timeout")
		c := newTestConverter(store, &halfTranscoder{}, Options{ProceedOnProbeError: true})

		out := c.ConvertOne(context.Background(), "a.png")
		assert.True(t, out.Converted())
		assert.Equal(t, []string{"a.webp"}, store.putKeys())
	})
}

func TestRunEmptyKeys(t *testing.T) {
	tr := &halfTranscoder{}
	c := newTestConverter(newMemStore(), tr, Options{})

	res := c.Run(context.Background(), nil)

	assert.NotNil(t, res.Outcomes)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, Stats{}, res.Stats)
	assert.True(t, res.Stats.StartTime.IsZero())
	assert.True(t, res.Stats.EndTime.IsZero())
	assert.Zero(t, tr.calls.Load())
}

func TestRunCountsEveryKeyOnce(t *testing.T) {
	var keys []string
	for i := 0; i < 25; i++ {
		keys = append(keys, fmt.Sprintf("img/%02d.png", i))
	}
	store := newMemStore(keys...)
	store.add("out/03.webp", []byte("old"))
	store.add("out/07.webp", []byte("old"))
	store.getErr["img/10.png"] = errBoom
	store.getErr["img/11.png"] = errBoom
	store.getErr["img/12.png"] = errBoom

	c := newTestConverter(store, &halfTranscoder{}, Options{DestinationPrefix: "out", MaxWorkers: 5})
	res := c.Run(context.Background(), keys)

	require.Len(t, res.Outcomes, 25)
	assert.Equal(t, 25, res.Stats.TotalFiles)
	assert.Equal(t, 25, res.Stats.Processed)
	assert.Equal(t, 20, res.Stats.Succeeded)
	assert.Equal(t, 3, res.Stats.Failed)
	assert.Equal(t, 2, res.Stats.Skipped)
	assert.Equal(t, res.Stats.Processed, res.Stats.Succeeded+res.Stats.Failed+res.Stats.Skipped)
	assert.False(t, res.Stats.EndTime.Before(res.Stats.StartTime))
	assert.NotEmpty(t, res.RunID)

	seen := map[string]int{}
	for _, o := range res.Outcomes {
		seen[o.SourceKey]++
		assert.True(t, o.Status.Terminal())
	}
	for _, k := range keys {
		assert.Equal(t, 1, seen[k], k)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var keys []string
	for i := 0; i < 50; i++ {
		keys = append(keys, fmt.Sprintf("%d.jpg", i))
	}
	tr := &halfTranscoder{delay: 2 * time.Millisecond}
	c := newTestConverter(newMemStore(keys...), tr, Options{MaxWorkers: 4})

	res := c.Run(context.Background(), keys)

	assert.Equal(t, 50, res.Stats.Succeeded)
	assert.LessOrEqual(t, tr.maxActive.Load(), int32(4))
	assert.Equal(t, int32(50), tr.calls.Load())
}

func TestRunRecoversPanic(t *testing.T) {
	store := newMemStore("a.png", "c.png")
	store.add("b.png", []byte("panic"))
	c := newTestConverter(store, &halfTranscoder{}, Options{MaxWorkers: 2})

	res := c.Run(context.Background(), []string{"a.png", "b.png", "c.png"})

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, 2, res.Stats.Succeeded)
	assert.Equal(t, 1, res.Stats.Failed)
	for _, o := range res.Outcomes {
		if o.SourceKey == "b.png" {
			assert.True(t, o.Failed())
			assert.Contains(t, o.Error, "codec exploded")
			assert.Equal(t, schema.FailureTypePermanent, o.FailureType)
		}
	}
}

func TestRunCanceledContextFailsEveryKey(t *testing.T) {
	keys := []string{"a.png", "b.png", "c.png"}
	tr := &halfTranscoder{}
	c := newTestConverter(newMemStore(keys...), tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Run(ctx, keys)

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, 3, res.Stats.Failed)
	for _, o := range res.Outcomes {
		assert.Equal(t, schema.FailureTypeRetryable, o.FailureType)
	}
	assert.Zero(t, tr.calls.Load())
}

func TestRunNotifies(t *testing.T) {
	store := newMemStore("a.png", "b.png")
	store.getErr["b.png"] = errBoom
	n := &recordingNotifier{err: errors.New("nats down")}
	c := New(Options{Bucket: "photos", MaxWorkers: 2, Quality: 90}, store, &halfTranscoder{}, quietLogger(), n)

	res := c.Run(context.Background(), []string{"a.png", "b.png"})

	require.Len(t, n.outcomes, 2, "publish errors must not stop the run")
	require.Len(t, n.batches, 1)
	assert.Equal(t, res.RunID, n.batches[0].RunID)
	assert.Equal(t, "photos", n.batches[0].Bucket)
	assert.Equal(t, 1, n.batches[0].Succeeded)
	assert.Equal(t, 1, n.batches[0].Failed)
	for _, ev := range n.outcomes {
		assert.Equal(t, res.RunID, ev.RunID)
		if ev.SourceKey == "b.png" {
			assert.Equal(t, "failed", ev.Status)
			assert.Equal(t, schema.StageFetch, ev.Stage)
		}
	}
}

func TestConvertAllIsIdempotent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bucket"), 0o755))
	store, err := storage.NewFileStore(root, "bucket")
	require.NoError(t, err)

	ctx := context.Background()
	for i, name := range []string{"photos/a.png", "photos/b.png", "photos/nested/c.png"} {
		require.NoError(t, store.Put(ctx, name, pngBytes(t, 8+i, 8), "image/png"))
	}
	require.NoError(t, store.Put(ctx, "photos/readme.txt", []byte("hi"), "text/plain"))

	c := New(Options{DestinationPrefix: "webp-images", Quality: 80, MaxWorkers: 2}, store, img.NewWebPTranscoder(), quietLogger(), nil)

	first, err := c.ConvertAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stats.Succeeded)
	assert.NoError(t, first.Err())

	p, err := store.Probe(ctx, "webp-images/c.webp")
	require.NoError(t, err)
	assert.Equal(t, storage.Exists, p)

	// .webp outputs are not listed as sources, so the second run sees the
	// same three images and skips them all
	second, err := c.ConvertAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Stats.TotalFiles)
	assert.Equal(t, 3, second.Stats.Skipped)
	assert.Zero(t, second.Stats.Succeeded)
	assert.Zero(t, second.Stats.Failed)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			m.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, m))
	return buf.Bytes()
}
