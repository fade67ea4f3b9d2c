package convert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendant/simple-webp/internal/img"
	"github.com/tendant/simple-webp/internal/storage"
	"github.com/tendant/simple-webp/pkg/schema"
)

type putCall struct {
	key         string
	contentType string
	size        int
}

// memStore is an in-memory storage.Store with injectable failures.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	order   []string

	listErr   error
	getErr    map[string]error
	putErr    error
	deleteErr error
	probeErr  error

	gets    []string
	puts    []putCall
	deletes []string
}

func newMemStore(keys ...string) *memStore {
	s := &memStore{objects: map[string][]byte{}, getErr: map[string]error{}}
	for _, k := range keys {
		s.add(k, []byte("source:"+k))
	}
	return s
}

func (s *memStore) add(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		s.order = append(s.order, key)
	}
	s.objects[key] = data
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *memStore) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, fmt.Errorf("%w: list: %w", storage.ErrStoreUnavailable, s.listErr)
	}
	out := []storage.Object{}
	for _, k := range s.order {
		if data, ok := s.objects[k]; ok && strings.HasPrefix(k, prefix) {
			out = append(out, storage.Object{Key: k, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", storage.ErrStoreUnavailable, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = append(s.gets, key)
	if err := s.getErr[key]; err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", storage.ErrStoreUnavailable, key, err)
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return data, nil
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return fmt.Errorf("%w: put %s: %w", storage.ErrStoreUnavailable, key, s.putErr)
	}
	if _, ok := s.objects[key]; !ok {
		s.order = append(s.order, key)
	}
	s.objects[key] = data
	s.puts = append(s.puts, putCall{key: key, contentType: contentType, size: len(data)})
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return fmt.Errorf("%w: delete %s: %w", storage.ErrStoreUnavailable, key, s.deleteErr)
	}
	delete(s.objects, key)
	s.deletes = append(s.deletes, key)
	return nil
}

func (s *memStore) Probe(ctx context.Context, key string) (storage.Presence, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProbeError, fmt.Errorf("%w: probe %s: %w", storage.ErrStoreUnavailable, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probeErr != nil {
		return storage.ProbeError, fmt.Errorf("%w: probe %s: %w", storage.ErrStoreUnavailable, key, s.probeErr)
	}
	if _, ok := s.objects[key]; ok {
		return storage.Exists, nil
	}
	return storage.Absent, nil
}

func (s *memStore) Check(ctx context.Context) error { return nil }

func (s *memStore) putKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.puts))
	for _, p := range s.puts {
		keys = append(keys, p.key)
	}
	sort.Strings(keys)
	return keys
}

// halfTranscoder returns output half the input size. Input "panic" panics and
// input "garbage" fails to decode.
type halfTranscoder struct {
	delay     time.Duration
	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32
}

func (t *halfTranscoder) Name() string                  { return "half" }
func (t *halfTranscoder) Supports(filename string) bool { return img.IsSupportedExtension(filename) }

func (t *halfTranscoder) ToWebP(ctx context.Context, data []byte, quality int) ([]byte, error) {
	t.calls.Add(1)
	n := t.active.Add(1)
	defer t.active.Add(-1)
	for {
		m := t.maxActive.Load()
		if n <= m || t.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if t.delay > 0 {
		time.Sleep(t.delay)
	}

	switch string(data) {
	case "panic":
		panic("codec exploded")
	case "garbage":
		return nil, fmt.Errorf("%w: unknown format", img.ErrDecode)
	}
	return make([]byte, len(data)/2), nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []schema.ConversionEvent
	batches  []schema.BatchDone
	err      error
}

func (n *recordingNotifier) NotifyOutcome(ctx context.Context, ev schema.ConversionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, ev)
	return n.err
}

func (n *recordingNotifier) NotifyBatch(ctx context.Context, done schema.BatchDone) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, done)
	return n.err
}

var errBoom = errors.New("boom")
