package history

import (
	"context"
	"log"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	"github.com/rs/xid"
)

// recordTimeout bounds a single Record call made from the hook.
const recordTimeout = 5 * time.Second

// Recorder is an engine.Hook that stores every execution in a Store.
type Recorder struct {
	Store *Store
}

// NewRecorder returns a hook recording into store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{Store: store}
}

// AfterExecute records the run. Blank submissions are not recorded, and a
// failure to record is logged without affecting the caller.
func (r *Recorder) AfterExecute(ctx context.Context, req engine.ExecutionRequest, res engine.ExecutionResult) {
	if r == nil || r.Store == nil || res.Outcome == engine.OutcomeEmpty {
		return
	}

	id := res.RunID
	if id == "" {
		id = xid.New().String()
	}

	run := Run{
		ID:        id,
		Language:  string(req.Language),
		Outcome:   string(res.Outcome),
		ExitCode:  res.ExitCode,
		Duration:  res.Duration,
		Code:      req.Code,
		Report:    engine.FormatReport(res),
		CreatedAt: time.Now(),
	}

	// The run has finished; a cancelled request must not lose its record.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := r.Store.Record(rctx, run); err != nil {
		log.Printf("WARNING: failed to record run %s: %v", id, err)
	}
}
