package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/models"
	"github.com/clinicvault/clinicvault-api/session"
)

// staleClipAge is how long an orphaned temp audio clip may sit on disk
// before the purge job removes it. The transcriber deletes clips itself;
// anything this old belongs to a crashed upload.
const staleClipAge = time.Hour

// Scheduler handles periodic background jobs for session hygiene
type Scheduler struct {
	cron     *cron.Cron
	Registry *session.Registry
	CDB      databases.ConsultationDatabase
}

// NewScheduler creates a new scheduler instance
func NewScheduler(registry *session.Registry, cdb databases.ConsultationDatabase) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		Registry: registry,
		CDB:      cdb,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Sweep live rooms against consultation status every minute. This
	// closes rooms whose consultation was completed or cancelled through a
	// path that could not reach the registry, such as a direct database fix.
	_, err := s.cron.AddFunc("@every 1m", s.reconcileSessions)
	if err != nil {
		zap.S().Errorw("failed to register session reconcile job", "error", err)
	}

	// Purge orphaned temp audio clips hourly
	_, err = s.cron.AddFunc("@hourly", s.purgeStaleClips)
	if err != nil {
		zap.S().Errorw("failed to register clip purge job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("Session hygiene scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Session hygiene scheduler stopped")
}

// reconcileSessions force-closes any live room whose consultation is no
// longer active
func (s *Scheduler) reconcileSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rooms := s.Registry.ActiveRooms()
	closed := 0
	for _, consultationID := range rooms {
		status, err := s.CDB.Status(ctx, consultationID)
		if err != nil {
			zap.S().Warnw("failed to check consultation status for live room",
				"consultationID", consultationID,
				"error", err,
			)
			continue
		}
		if status != models.StatusActive {
			s.Registry.CloseRoom(consultationID, "consultation is "+string(status))
			closed++
		}
	}

	if closed > 0 {
		zap.S().Infow("Session reconcile complete",
			"roomsChecked", len(rooms),
			"roomsClosed", closed,
		)
	}
}

// purgeStaleClips removes temp audio files left behind by crashed uploads
func (s *Scheduler) purgeStaleClips() {
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "clinicvault-clip-*"))
	if err != nil {
		zap.S().Errorw("failed to scan temp dir for stale clips", "error", err)
		return
	}

	cutoff := time.Now().Add(-staleClipAge)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				zap.S().Warnw("failed to remove stale clip", "path", path, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		zap.S().Infow("Stale clip purge complete", "removed", removed)
	}
}
