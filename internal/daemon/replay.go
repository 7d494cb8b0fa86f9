package daemon

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/infra"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/usecase"
)

// Replay rebuilds the executor's applied-path knowledge from the journal
// without touching the engine. Only ConfigApplied records count as
// applied; an intent whose apply failed or was rejected is executed
// again on the first tick. Recorded events are restored into the
// pipeline store. Returns the number of events replayed.
func Replay(ctx context.Context, p *Pipeline, journal domain.EventJournal, logger *zap.Logger) (int, error) {
	entries, err := journal.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}
	events := infra.JournalEvents(entries)
	if len(events) == 0 {
		return 0, nil
	}

	p.Executor.Restore(usecase.AppliedPathFrom(events))
	p.Store.Restore(events)

	st := p.Executor.State()
	logger.Info("journal replayed",
		zap.Int("events", len(events)),
		zap.String("applied_path", st.AppliedPath),
		zap.String("last_outcome", st.LastOutcome.String()))
	return len(events), nil
}
