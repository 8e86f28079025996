package pagedir

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Maintain runs garbage collection and, when a blob store is configured, a
// checkpoint. It is what WithMaintenanceSchedule runs.
func (d *Directory) Maintain(ctx context.Context) error {
	if err := d.rc.AcquireBackground(ctx); err != nil {
		return err
	}
	defer d.rc.ReleaseBackground()
	return d.maintain(ctx)
}

func (d *Directory) maintain(ctx context.Context) error {
	if _, err := d.garbageCollect(ctx); err != nil {
		return err
	}
	if d.checkpoints == nil {
		return nil
	}
	_, err := d.checkpoint(ctx)
	return err
}

func (d *Directory) startMaintenance(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, d.runScheduled); err != nil {
		return errors.Wrapf(err, "pagedir: maintenance schedule %q", spec)
	}
	d.cron = c
	c.Start()
	d.logger.Info("maintenance scheduled", "schedule", spec)
	return nil
}

// runScheduled is the cron job. A run that finds the previous one, or a manual
// GarbageCollect or Checkpoint, still active is skipped.
func (d *Directory) runScheduled() {
	if d.closed.Load() {
		return
	}
	if !d.rc.TryAcquireBackground() {
		d.logger.Debug("maintenance skipped, background slot busy")
		return
	}
	defer d.rc.ReleaseBackground()

	if err := d.maintain(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
		d.logger.Warn("scheduled maintenance failed", "error", err)
	}
}
