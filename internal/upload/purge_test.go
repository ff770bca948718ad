package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/upload"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// memStore is an in-memory ObjectStorage whose deletes can be made to fail.
type memStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failDeletes int
	release     chan struct{}
}

func newMemStore(keys ...string) *memStore {
	m := &memStore{objects: map[string][]byte{}}
	for _, k := range keys {
		m.objects[k] = []byte(k)
	}
	return m
}

func (m *memStore) SetShouldFail(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDeletes = n
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ storage.ObjectMetadata) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeletes > 0 {
		m.failDeletes--
		return errors.New("storage unavailable")
	}
	if _, ok := m.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var _ = Describe("Purger", func() {
	var (
		store  *memStore
		purger *upload.Purger
		logger *slog.Logger
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		store = newMemStore("a", "b", "c")
	})

	AfterEach(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = purger.Shutdown(ctx)
	})

	It("deletes every key received through the uploads.removed event", func() {
		purger = upload.NewPurger(store, upload.PurgerConfig{Workers: 2, QueueSize: 10}, logger)

		Expect(purger.HandleUploadsRemoved(context.Background(), events.NewUploadsRemovedEvent([]string{"a", "b", "missing"}))).To(Succeed())

		Eventually(purger.Purged).Should(Equal(int64(3)))
		Expect(store.len()).To(Equal(1))
	})

	It("retries transient storage failures", func() {
		purger = upload.NewPurger(store, upload.PurgerConfig{Workers: 1, QueueSize: 10, Backoff: time.Millisecond}, logger)
		store.SetShouldFail(2)

		Expect(purger.Enqueue("c")).To(Succeed())

		Eventually(purger.Purged).Should(Equal(int64(1)))
		Expect(store.len()).To(Equal(2))
	})

	It("drains queued work on shutdown and refuses new work afterwards", func() {
		purger = upload.NewPurger(store, upload.PurgerConfig{Workers: 1, QueueSize: 10}, logger)
		Expect(purger.Enqueue("a", "b", "c")).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		Expect(purger.Shutdown(ctx)).To(Succeed())
		Expect(store.len()).To(BeZero())

		Expect(purger.Enqueue("late")).NotTo(Succeed())
	})

	It("reports keys that do not fit in the queue", func() {
		store.release = make(chan struct{})
		purger = upload.NewPurger(store, upload.PurgerConfig{Workers: 1, QueueSize: 1, MaxAttempts: 1}, logger)
		keys := make([]string, 50)
		for i := range keys {
			keys[i] = "k"
		}
		err := purger.Enqueue(keys...)
		Expect(errors.Is(err, upload.ErrPurgeQueueFull)).To(BeTrue())
		close(store.release)
	})
})
