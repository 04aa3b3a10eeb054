package server

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/stores"
)

// RetentionSweeper periodically deletes conversations that have been idle
// longer than the retention window. A zero window disables sweeping.
type RetentionSweeper struct {
	Store    stores.MessageStore
	Window   time.Duration
	Schedule string
	Logger   *log.Logger

	cron *cron.Cron
}

func NewRetentionSweeper(store stores.MessageStore, window time.Duration, schedule string) *RetentionSweeper {
	return &RetentionSweeper{
		Store:    store,
		Window:   window,
		Schedule: schedule,
		Logger:   log.New(os.Stdout, "[retention] ", log.LstdFlags),
	}
}

// Start schedules the sweep. It returns an error if the schedule spec is
// invalid.
func (r *RetentionSweeper) Start() error {
	if r.Window <= 0 {
		r.Logger.Printf("Retention disabled, no window configured")
		return nil
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.Schedule, r.Sweep); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.Schedule, err)
	}
	r.cron.Start()
	r.Logger.Printf("Sweeping conversations older than %s on schedule %q", r.Window, r.Schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (r *RetentionSweeper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep deletes conversations idle past the window. Safe to call directly.
func (r *RetentionSweeper) Sweep() {
	cutoff := time.Now().Add(-r.Window)
	deleted, err := r.Store.PruneBefore(cutoff)
	if err != nil {
		r.Logger.Printf("Error pruning conversations: %v", err)
		return
	}
	if deleted > 0 {
		r.Logger.Printf("Pruned %d conversations idle since before %s", deleted, cutoff.Format(time.RFC3339))
	}
}
