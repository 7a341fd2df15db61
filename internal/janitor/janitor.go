// Package janitor schedules SQLite storage upkeep. It touches database
// files only and never rewrites record contents.
package janitor

import (
	"database/sql"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds the cron expressions for each task.
type Config struct {
	CheckpointSchedule string
	VacuumSchedule     string
}

// Janitor runs periodic WAL checkpoints and vacuums.
type Janitor struct {
	db     *sql.DB
	cron   *cron.Cron
	logger zerolog.Logger
}

// New creates a janitor with both tasks registered.
func New(db *sql.DB, cfg Config, logger zerolog.Logger) (*Janitor, error) {
	j := &Janitor{
		db:     db,
		cron:   cron.New(),
		logger: logger,
	}

	if cfg.CheckpointSchedule != "" {
		if _, err := j.cron.AddFunc(cfg.CheckpointSchedule, j.checkpoint); err != nil {
			return nil, fmt.Errorf("invalid checkpoint schedule %q: %w", cfg.CheckpointSchedule, err)
		}
	}
	if cfg.VacuumSchedule != "" {
		if _, err := j.cron.AddFunc(cfg.VacuumSchedule, j.vacuum); err != nil {
			return nil, fmt.Errorf("invalid vacuum schedule %q: %w", cfg.VacuumSchedule, err)
		}
	}

	return j, nil
}

// Start begins running scheduled tasks in their own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop stops the scheduler and waits for an in-flight task to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) checkpoint() {
	if _, err := j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		j.logger.Error().Err(err).Msg("WAL checkpoint failed")
		return
	}
	j.logger.Debug().Msg("WAL checkpoint complete")
}

func (j *Janitor) vacuum() {
	if _, err := j.db.Exec("VACUUM"); err != nil {
		j.logger.Error().Err(err).Msg("Vacuum failed")
		return
	}
	j.logger.Debug().Msg("Vacuum complete")
}
