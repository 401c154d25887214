// Package migrations provisions the ClickHouse schema used for time series
// observations, forecasts and model configs.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/sirupsen/logrus"
)

var (
	// ErrProvisionFailed wraps every failure to set up the schema
	ErrProvisionFailed = errors.New("schema provisioning failed")
	// ErrNotVerified is returned when a migration applied cleanly but its objects are still missing
	ErrNotVerified = errors.New("migration did not verify after apply")
)

// Migration is a single idempotent schema step
type Migration interface {
	// ID identifies the migration in logs and metrics
	ID() string
	// CanApply checks preconditions such as server health
	CanApply(ctx context.Context) error
	// ShouldApply reports whether any object of the migration is missing
	ShouldApply(ctx context.Context) (bool, error)
	// Apply creates the missing objects
	Apply(ctx context.Context) error
	// HasSucceeded re-derives completion from the same check as ShouldApply
	HasSucceeded(ctx context.Context) (bool, error)
	// RollbackInstructions returns the script that drops the migration's objects
	RollbackInstructions() string
}

// Runner applies migrations in order
type Runner struct {
	log        logrus.FieldLogger
	migrations []Migration
}

// NewRunner creates a runner over the given migrations
func NewRunner(log logrus.FieldLogger, migrations ...Migration) *Runner {
	return &Runner{
		log:        log.WithField("component", "migrations"),
		migrations: migrations,
	}
}

// Run applies every migration that still has missing objects. Failures are
// returned, not retried; callers decide whether to run again.
func (r *Runner) Run(ctx context.Context) error {
	for _, m := range r.migrations {
		if err := r.run(ctx, m); err != nil {
			observability.RecordMigration(m.ID(), "failed")
			return err
		}
	}

	return nil
}

func (r *Runner) run(ctx context.Context, m Migration) error {
	log := r.log.WithField("migration", m.ID())

	if err := m.CanApply(ctx); err != nil {
		return fmt.Errorf("%w: migration %s cannot apply: %w", ErrProvisionFailed, m.ID(), err)
	}

	should, err := m.ShouldApply(ctx)
	if err != nil {
		return fmt.Errorf("%w: migration %s: %w", ErrProvisionFailed, m.ID(), err)
	}

	if !should {
		log.Debug("Migration already applied")
		observability.RecordMigration(m.ID(), "skipped")

		return nil
	}

	log.Info("Applying migration")

	if err := m.Apply(ctx); err != nil {
		return fmt.Errorf("%w: migration %s: %w", ErrProvisionFailed, m.ID(), err)
	}

	ok, err := m.HasSucceeded(ctx)
	if err != nil {
		return fmt.Errorf("%w: migration %s: %w", ErrProvisionFailed, m.ID(), err)
	}

	if !ok {
		return fmt.Errorf("%w: migration %s: %w", ErrProvisionFailed, m.ID(), ErrNotVerified)
	}

	log.Info("Migration applied")
	observability.RecordMigration(m.ID(), "applied")

	return nil
}

// RollbackInstructions returns the rollback scripts of all migrations, newest first
func (r *Runner) RollbackInstructions() string {
	parts := make([]string, 0, len(r.migrations))

	for i := len(r.migrations) - 1; i >= 0; i-- {
		m := r.migrations[i]
		parts = append(parts, fmt.Sprintf("-- %s\n%s", m.ID(), strings.TrimSpace(m.RollbackInstructions())))
	}

	return strings.Join(parts, "\n\n") + "\n"
}
