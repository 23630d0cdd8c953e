package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

// Summarizer computes a session's score. *service.ResultService implements it.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID uuid.UUID) (model.ScoreSummary, error)
}

// ScoreWriter persists score snapshots. Both store drivers implement it.
type ScoreWriter interface {
	SaveScores(ctx context.Context, scores map[uuid.UUID]model.ScoreSummary) error
}

// ScoringWorker drains the score queue and writes the score/total/percentage
// snapshot of completed sessions in batches.
type ScoringWorker struct {
	queue   Queue
	results Summarizer
	scores  ScoreWriter
	log     zerolog.Logger
}

func NewScoringWorker(queue Queue, results Summarizer, scores ScoreWriter, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		queue:   queue,
		results: results,
		scores:  scores,
		log:     log.With().Str("component", "scoring_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start runs until ctx is cancelled, then flushes what it holds. Call in a goroutine.
func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	batch := make([]uuid.UUID, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			id, ok, err := w.queue.Dequeue(ctx, ScorePollTimeout)
			if err != nil {
				w.log.Error().Err(err).Msg("Dequeue error")
				continue
			}
			if !ok {
				continue
			}
			batch = append(batch, id)
		}
	}
}

// ----------------------------------------------------------------
// Batch wrapper with per-item fallback
// ----------------------------------------------------------------

func (w *ScoringWorker) flushSafe(ctx context.Context, batch []uuid.UUID) {
	if len(batch) == 0 {
		return
	}

	scores := make(map[uuid.UUID]model.ScoreSummary, len(batch))
	for _, id := range batch {
		if _, dup := scores[id]; dup {
			continue
		}
		sum, err := w.results.Summarize(ctx, id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				w.log.Warn().Str("session_id", id.String()).Msg("Session vanished, dropping score job")
				continue
			}
			w.log.Error().Err(err).Str("session_id", id.String()).Msg("Summarize failed, requeueing")
			w.requeue(ctx, id)
			continue
		}
		scores[id] = sum
	}
	if len(scores) == 0 {
		return
	}

	if err := w.scores.SaveScores(ctx, scores); err != nil {
		w.log.Warn().Err(err).Int("size", len(scores)).Msg("Bulk score update failed, using fallback")

		for id, sum := range scores {
			if err := w.scores.SaveScores(ctx, map[uuid.UUID]model.ScoreSummary{id: sum}); err != nil {
				w.log.Error().Err(err).Str("session_id", id.String()).Msg("Single score update failed, requeueing")
				w.requeue(ctx, id)
				continue
			}
			metrics.ScoresPersisted.Inc()
		}
		return
	}
	metrics.ScoresPersisted.Add(float64(len(scores)))
}

func (w *ScoringWorker) requeue(ctx context.Context, id uuid.UUID) {
	metrics.ScoreQueueRequeued.Inc()
	if err := w.queue.Enqueue(ctx, id); err != nil {
		w.log.Error().Err(err).Str("session_id", id.String()).Msg("Requeue failed, score snapshot lost")
	}
}
