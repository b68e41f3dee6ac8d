// Package cronjobs schedules the server's periodic maintenance: durable
// discovery-index resync, voice-transcript-store orphan compaction, and
// S3 archival of ended conversations, per spec.md §4.5/§4.6's mention of
// periodic refresh (see internal/discovery's Index doc comment,
// internal/transcript.Store.PruneOrphans, and internal/backupstore).
package cronjobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/discovery"
	"github.com/haasonsaas/nexus-experience/internal/transcript"
	"github.com/robfig/cron/v3"
)

// backupArchiver is the subset of backupstore.Store the scheduler needs,
// kept as an interface so tests can supply a fake rather than talking to
// real S3.
type backupArchiver interface {
	ArchiveConversation(ctx context.Context, sessionID, conversationPath, transcriptPath string) error
}

// discoverySyncTimeout bounds one scheduled discovery-index sync: a
// filesystem scan plus a transactional sqlite rewrite.
const discoverySyncTimeout = 30 * time.Second

// backupSweepTimeout bounds one scheduled backup sweep's total S3 upload
// time across every ended conversation found.
const backupSweepTimeout = 2 * time.Minute

// Scheduler owns the cron.Cron instance driving this server's background
// maintenance sweeps.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler constructs a Scheduler. It does not start anything until
// Start is called.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// ScheduleDiscoverySync registers a full discovery-index resync at the
// given cron spec (standard 5-field expression, e.g. "*/5 * * * *").
func (s *Scheduler) ScheduleDiscoverySync(spec string, idx *discovery.Index, scanner *discovery.Scanner) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), discoverySyncTimeout)
		defer cancel()
		n, err := idx.Sync(ctx, scanner)
		if err != nil {
			s.logger.Warn("scheduled discovery index sync failed", "error", err)
			return
		}
		s.logger.Info("scheduled discovery index sync complete", "synced", n)
	})
	return err
}

// ScheduleTranscriptCompaction registers a periodic sweep that drops
// voice-transcript index entries whose backing conversation directory
// was deleted out-of-band.
func (s *Scheduler) ScheduleTranscriptCompaction(spec string, store *transcript.Store) error {
	_, err := s.cron.AddFunc(spec, func() {
		removed, err := store.PruneOrphans()
		if err != nil {
			s.logger.Warn("scheduled transcript compaction failed", "error", err)
			return
		}
		if removed > 0 {
			s.logger.Info("scheduled transcript compaction removed orphan entries", "removed", removed)
		}
	})
	return err
}

// ScheduleBackupArchival registers a periodic sweep that uploads every
// ended conversation's conversation.json and transcript.jsonl to the
// given backupstore.Store. Re-uploads on every tick rather than tracking
// an "already archived" flag, since S3 PutObject is a plain overwrite and
// the store has nowhere durable to record that flag outside of S3 itself.
func (s *Scheduler) ScheduleBackupArchival(spec string, store *transcript.Store, backup backupArchiver) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), backupSweepTimeout)
		defer cancel()

		conversations, err := store.ListConversations()
		if err != nil {
			s.logger.Warn("scheduled backup sweep failed to list conversations", "error", err)
			return
		}
		archived := 0
		for _, conv := range conversations {
			if conv.Status != transcript.StatusEnded {
				continue
			}
			convPath, transcriptPath := store.ArchiveFiles(conv.ID)
			if err := backup.ArchiveConversation(ctx, conv.ID, convPath, transcriptPath); err != nil {
				s.logger.Warn("scheduled backup sweep failed for session", "session_id", conv.ID, "error", err)
				continue
			}
			archived++
		}
		if archived > 0 {
			s.logger.Info("scheduled backup sweep archived ended conversations", "count", archived)
		}
	})
	return err
}

// Start begins running scheduled jobs in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop ends the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
