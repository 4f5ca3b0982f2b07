package app

import (
	"context"

	"github.com/auricle-ai/auricle/internal/answer"
	"github.com/auricle-ai/auricle/internal/bus"
)

// recordExchanges persists completed question/answer exchanges. It is
// fire-and-forget: persistence failures are logged and never propagate back
// into the pipeline.
func (a *App) recordExchanges(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Kind != bus.KindAnswerDone {
				continue
			}
			done, ok := ev.Payload.(answer.DoneEvent)
			if !ok {
				continue
			}
			a.persistExchange(ctx, done)
		}
	}
}

func (a *App) persistExchange(ctx context.Context, done answer.DoneEvent) {
	for _, ex := range a.orch.Exchanges() {
		if ex.ID != done.QuestionID {
			continue
		}
		// The done event is authoritative for the answer fields; the
		// orchestrator may not have folded them into its history yet.
		ex.Answer = done.Text
		ex.AnswerDuration = done.Duration

		if a.embedder != nil && ex.Question != "" {
			emb, err := a.embedder.Embed(ctx, ex.Question)
			if err != nil {
				a.log.Warn("question embedding failed", "question_id", ex.ID, "error", err)
			} else {
				ex.Embedding = emb
			}
		}

		if err := a.store.Record(ctx, ex); err != nil {
			a.log.Warn("exchange not persisted", "question_id", ex.ID, "error", err)
		}
		return
	}
	a.log.Debug("answer done for unknown question", "question_id", done.QuestionID)
}
