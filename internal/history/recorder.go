package history

import (
	"context"

	"github.com/askorupski/agentflow/internal/events"
	"github.com/askorupski/agentflow/internal/logging"
)

// Recorder drains the event bus into the journal. It uses a priority
// subscription so journaled events are never dropped under backpressure.
type Recorder struct {
	journal *Journal
	bus     *events.EventBus
	logger  *logging.Logger
	ch      <-chan events.Event
	done    chan struct{}
}

// NewRecorder subscribes to the bus and starts journaling. Call Close
// to stop.
func NewRecorder(journal *Journal, bus *events.EventBus, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Recorder{
		journal: journal,
		bus:     bus,
		logger:  logger,
		ch:      bus.SubscribePriority(),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer close(r.done)
	for ev := range r.ch {
		r.handle(ev)
	}
}

func (r *Recorder) handle(ev events.Event) {
	ctx := context.Background()
	switch e := ev.(type) {
	case events.RecoveryExecutedEvent:
		err := r.journal.RecordRecovery(ctx, RecoveryOutcome{
			OccurredAt: e.Time,
			TaskID:     e.TaskID,
			Strategy:   e.Strategy,
			Action:     e.Action,
			Success:    e.Success,
		})
		if err != nil {
			r.logger.Warn("journaling recovery outcome failed", "error", err)
		}
	case events.UpgradeRecommendedEvent:
		err := r.journal.RecordEscalation(ctx, EscalationRecommendation{
			OccurredAt:        e.Time,
			TaskID:            e.TaskID,
			SuggestedLevel:    e.SuggestedLevel,
			SuggestHeavyModel: e.SuggestHeavyModel,
			Confidence:        e.Confidence,
			Reasons:           e.Reasons,
		})
		if err != nil {
			r.logger.Warn("journaling escalation failed", "error", err)
		}
	}
}

// Close unsubscribes from the bus and waits for in-flight writes.
func (r *Recorder) Close() {
	r.bus.Unsubscribe(r.ch)
	<-r.done
}
