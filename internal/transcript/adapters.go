package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/pipeline"
	"github.com/lexiqai/interpreter/internal/stt"
)

// Enqueuer accepts segments; *pipeline.Session and *pipeline.Queue satisfy it
type Enqueuer interface {
	Enqueue(text string, origin pipeline.Origin) (pipeline.Segment, error)
}

// Live feeds recognition events into a queue. Interim text is only shown;
// final text becomes a segment.
type Live struct {
	queue     Enqueuer
	onInterim func(text string)
	logger    zerolog.Logger
}

// NewLive creates a live adapter. onInterim may be nil.
func NewLive(queue Enqueuer, onInterim func(text string), logger zerolog.Logger) *Live {
	if onInterim == nil {
		onInterim = func(string) {}
	}
	return &Live{
		queue:     queue,
		onInterim: onInterim,
		logger:    observability.WithComponent(logger, "live"),
	}
}

// Handle implements stt.Handler
func (l *Live) Handle(ev stt.Event) {
	switch e := ev.(type) {
	case stt.Interim:
		l.onInterim(e.Text)
	case stt.Final:
		seg, err := l.queue.Enqueue(e.Text, pipeline.OriginLive)
		if err != nil {
			if !errors.Is(err, pipeline.ErrEmptySegment) {
				l.logger.Warn().Err(err).Msg("Final transcript not queued")
			}
			return
		}
		l.logger.Debug().Uint64("sequence", seg.Sequence).Int("result_index", e.Index).Msg("Final transcript queued")
	case stt.Failure:
		// Reported by the session that owns the recognizer
	}
}

// HandleResults maps a client recognition event and handles each part
func (l *Live) HandleResults(resultIndex int, results []stt.Result) {
	for _, ev := range stt.FromResults(resultIndex, results) {
		l.Handle(ev)
	}
}

// Importer submits an imported transcript sentence by sentence
type Importer struct {
	queue   Enqueuer
	stagger time.Duration
	logger  zerolog.Logger
}

// NewImporter creates an importer that waits stagger between submissions
func NewImporter(queue Enqueuer, stagger time.Duration, logger zerolog.Logger) *Importer {
	return &Importer{
		queue:   queue,
		stagger: stagger,
		logger:  observability.WithComponent(logger, "import"),
	}
}

// Import parses doc and enqueues each sentence. It returns how many
// sentences were queued; ctx cancellation stops further submissions.
func (im *Importer) Import(ctx context.Context, doc string) (int, error) {
	units := SplitSentences(ParseCues(doc))
	im.logger.Info().Int("sentences", len(units)).Msg("Importing transcript")

	queued := 0
	for i, unit := range units {
		if i > 0 && im.stagger > 0 {
			timer := time.NewTimer(im.stagger)
			select {
			case <-ctx.Done():
				timer.Stop()
				return queued, ctx.Err()
			case <-timer.C:
			}
		}
		if _, err := im.queue.Enqueue(unit, pipeline.OriginImported); err != nil {
			if errors.Is(err, pipeline.ErrEmptySegment) {
				continue
			}
			return queued, err
		}
		queued++
	}
	return queued, nil
}
