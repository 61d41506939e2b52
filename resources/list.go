package resources

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-inventory-client/fetch"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 2 * time.Second
)

var (
	// ErrStale is returned by a Refetch whose result was superseded by a newer
	// Refetch or a local mutation. Its result is discarded.
	ErrStale = errors.New("result superseded by a newer request")
	// ErrClosed is returned once the list has been closed.
	ErrClosed = errors.New("resource closed")
)

// State is what a view renders.
type State[T any] struct {
	Data    []T
	Loading bool
	Err     error
}

// Fetcher loads the whole collection.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// WaitFunc blocks for d or until ctx ends.
type WaitFunc func(ctx context.Context, d time.Duration) error

type settings struct {
	maxRetries int
	retryDelay time.Duration
	wait       WaitFunc
	logger     zerolog.Logger
}

type Option func(*settings)

// WithRetry sets how many extra attempts follow a network failure and the fixed delay between them.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *settings) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

func WithWait(wait WaitFunc) Option {
	return func(s *settings) {
		s.wait = wait
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// List caches one collection, refetching it with bounded retry on network
// failures. Only the newest request generation may change the state.
type List[T any] struct {
	name    string
	fetcher Fetcher[T]
	settings

	lifetime context.Context
	end      context.CancelFunc

	mu          sync.Mutex
	state       State[T]
	generation  uint64
	closed      bool
	nextSubID   int
	subscribers map[int]func(State[T])
}

func NewList[T any](name string, fetcher Fetcher[T], options ...Option) *List[T] {
	s := settings{
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		wait:       sleep,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(&s)
	}

	lifetime, end := context.WithCancel(context.Background())
	return &List[T]{
		name:        name,
		fetcher:     fetcher,
		settings:    s,
		lifetime:    lifetime,
		end:         end,
		subscribers: make(map[int]func(State[T])),
	}
}

func (l *List[T]) Snapshot() State[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *List[T]) snapshotLocked() State[T] {
	return State[T]{Data: slices.Clone(l.state.Data), Loading: l.state.Loading, Err: l.state.Err}
}

// Subscribe calls fn after every state change until unsubscribed or closed.
func (l *List[T]) Subscribe(fn func(State[T])) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSubID
	l.nextSubID++
	l.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, id)
			l.mu.Unlock()
		})
	}
}

// Mount starts the initial load in the background.
func (l *List[T]) Mount() {
	l.refetchInBackground()
}

// Refetch loads the collection. On a network failure it retries up to
// maxRetries times, giving up early when superseded or closed.
func (l *List[T]) Refetch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.lifetime, cancel)
	defer stop()

	gen, err := l.begin()
	if err != nil {
		return err
	}

	attempt := 0
	for {
		data, err := l.fetcher(ctx)
		if err == nil {
			return l.finish(gen, data, nil)
		}

		if !fetch.IsKind(err, fetch.KindNetwork) || attempt >= l.maxRetries {
			return l.finish(gen, nil, err)
		}
		if err := l.check(gen); err != nil {
			return err
		}

		attempt++
		l.logger.Warn().Err(err).Str("resource", l.name).Int("attempt", attempt).Dur("delay", l.retryDelay).Msg("Retrying after network error")
		// A caller giving up mid-wait still surfaces the network failure.
		if waitErr := l.wait(ctx, l.retryDelay); waitErr != nil {
			if checkErr := l.check(gen); checkErr != nil {
				return checkErr
			}
			return l.finish(gen, nil, err)
		}
		if err := l.check(gen); err != nil {
			return err
		}
	}
}

func (l *List[T]) begin() (uint64, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	l.generation++
	gen := l.generation
	l.state.Loading = true
	l.state.Err = nil
	l.notifyLocked()
	return gen, nil
}

func (l *List[T]) check(gen uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return ErrClosed
	case gen != l.generation:
		return ErrStale
	}
	return nil
}

// finish applies a result if gen is still current. A failure keeps the previous data.
func (l *List[T]) finish(gen uint64, data []T, err error) error {
	l.mu.Lock()
	switch {
	case l.closed:
		l.mu.Unlock()
		return ErrClosed
	case gen != l.generation:
		l.mu.Unlock()
		return ErrStale
	}

	l.state.Loading = false
	l.state.Err = err
	if err == nil {
		if data == nil {
			data = []T{}
		}
		l.state.Data = data
	}
	l.notifyLocked()
	return err
}

// mutate applies fn to the data and invalidates any in-flight fetch, whose
// result would predate the change.
func (l *List[T]) mutate(fn func([]T) []T) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.generation++
	l.state.Data = fn(slices.Clone(l.state.Data))
	l.state.Loading = false
	l.notifyLocked()
}

// Remove drops every item matching pred.
func (l *List[T]) Remove(pred func(T) bool) {
	l.mutate(func(data []T) []T {
		return slices.DeleteFunc(data, pred)
	})
}

// Patch replaces every item matching pred with fn(item).
func (l *List[T]) Patch(pred func(T) bool, fn func(T) T) {
	l.mutate(func(data []T) []T {
		for i := range data {
			if pred(data[i]) {
				data[i] = fn(data[i])
			}
		}
		return data
	})
}

func (l *List[T]) Prepend(items ...T) {
	l.mutate(func(data []T) []T {
		return append(slices.Clone(items), data...)
	})
}

// Close discards the cached data, cancels in-flight requests and drops subscribers.
func (l *List[T]) Close() {
	l.mu.Lock()
	l.closed = true
	l.state = State[T]{}
	l.subscribers = make(map[int]func(State[T]))
	l.mu.Unlock()
	l.end()
}

func (l *List[T]) refetchInBackground() {
	go func() {
		if err := l.Refetch(l.lifetime); err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, ErrClosed) {
			l.logger.Err(err).Str("resource", l.name).Msg("Background refetch failed")
		}
	}()
}

// notifyLocked releases l.mu and then calls subscribers in subscription order.
func (l *List[T]) notifyLocked() {
	state := l.snapshotLocked()
	ids := make([]int, 0, len(l.subscribers))
	for id := range l.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State[T]), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.subscribers[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
