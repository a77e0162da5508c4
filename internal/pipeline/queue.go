// Package pipeline runs text segments through translation, synthesis and
// playback strictly in arrival order, one segment at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/status"
)

var (
	// ErrEmptySegment is returned for whitespace-only text; nothing is queued
	ErrEmptySegment = errors.New("segment text is empty")
	// ErrQueueFull is returned when a bounded queue rejects a segment
	ErrQueueFull = errors.New("pipeline queue is full")
	// ErrAlreadyRunning is returned when a second consumer is started
	ErrAlreadyRunning = errors.New("pipeline queue is already running")
)

// Origin tells where a segment came from
type Origin string

const (
	OriginLive     Origin = "live"
	OriginImported Origin = "imported"
)

// Segment is one unit of source text. Its sequence is assigned on enqueue.
type Segment struct {
	Sequence uint64
	Text     string
	Origin   Origin
}

// Processor handles one segment to completion
type Processor interface {
	Process(ctx context.Context, seg Segment) error
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, seg Segment) error

func (f ProcessorFunc) Process(ctx context.Context, seg Segment) error { return f(ctx, seg) }

// Queue is a FIFO of segments drained by exactly one consumer. Enqueue
// never blocks.
type Queue struct {
	processor  Processor
	maxPending int
	reporter   status.Reporter
	logger     zerolog.Logger

	mu         sync.Mutex
	pending    []Segment
	nextSeq    uint64
	busy       bool
	running    bool
	wake       chan struct{}
	idle       chan struct{}
	idleClosed bool
}

// NewQueue creates a queue. maxPending <= 0 means unbounded.
func NewQueue(processor Processor, maxPending int, reporter status.Reporter, logger zerolog.Logger) *Queue {
	if reporter == nil {
		reporter = status.Discard
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		processor:  processor,
		maxPending: maxPending,
		reporter:   reporter,
		logger:     observability.WithComponent(logger, "queue"),
		wake:       make(chan struct{}, 1),
		idle:       idle,
		idleClosed: true,
	}
}

// Enqueue appends text to the tail and wakes the consumer
func (q *Queue) Enqueue(text string, origin Origin) (Segment, error) {
	if strings.TrimSpace(text) == "" {
		return Segment{}, ErrEmptySegment
	}

	q.mu.Lock()
	if q.maxPending > 0 && len(q.pending) >= q.maxPending {
		q.mu.Unlock()
		observability.RecordRejected()
		err := fmt.Errorf("%w: %d segments pending", ErrQueueFull, q.maxPending)
		q.reporter.Report(status.Failure(status.KindService, "queue", 0, err))
		return Segment{}, err
	}

	q.nextSeq++
	seg := Segment{Sequence: q.nextSeq, Text: text, Origin: origin}
	q.pending = append(q.pending, seg)
	if q.idleClosed {
		q.idle = make(chan struct{})
		q.idleClosed = false
	}
	q.mu.Unlock()

	observability.RecordEnqueued(string(origin))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return seg, nil
}

// Run drains the queue until ctx is done. Only one Run may ever be active.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	q.running = true
	q.mu.Unlock()

	for {
		seg, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}
		q.process(ctx, seg)
	}
}

// next pops the head, or marks the queue idle when empty
func (q *Queue) next() (Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.busy = false
		if !q.idleClosed {
			close(q.idle)
			q.idleClosed = true
		}
		return Segment{}, false
	}

	seg := q.pending[0]
	q.pending[0] = Segment{}
	q.pending = q.pending[1:]
	q.busy = true
	return seg, true
}

// process runs one segment; failures and panics stop at this boundary
func (q *Queue) process(ctx context.Context, seg Segment) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("segment processing panicked: %v", r)
		}
		if err != nil {
			q.reporter.Report(status.Failure(status.KindService, "pipeline", seg.Sequence, err))
		}
		observability.RecordProcessed(err == nil)
	}()

	q.logger.Debug().Uint64("sequence", seg.Sequence).Str("origin", string(seg.Origin)).Msg("Processing segment")
	err = q.processor.Process(ctx, seg)
}

// Len returns the number of segments waiting, excluding the one in flight
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Idle reports whether nothing is pending or in flight
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && !q.busy
}

// WaitIdle blocks until the queue is idle or ctx is done
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 && !q.busy {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}
