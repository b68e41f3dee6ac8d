package cronjobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/discovery"
	"github.com/haasonsaas/nexus-experience/internal/transcript"
)

type fakeArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (f *fakeArchiver) ArchiveConversation(_ context.Context, sessionID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, sessionID)
	return nil
}

func (f *fakeArchiver) archivedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.archived))
	copy(out, f.archived)
	return out
}

func TestScheduleTranscriptCompactionRunsOnTick(t *testing.T) {
	store := transcript.NewStore(t.TempDir())
	now := time.Now().UTC()
	if err := store.CreateConversation(transcript.VoiceConversation{ID: "orphan", Status: transcript.StatusActive, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	s := NewScheduler(nil)
	if err := s.ScheduleTranscriptCompaction("@every 10ms", store); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Start()
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	// No orphan yet (directory still exists), so nothing should have been
	// removed; this just proves the job runs without erroring.
	if _, _, err := store.GetConversation("orphan"); err != nil {
		t.Fatalf("unexpected error reading conversation after compaction ticks: %v", err)
	}
}

func TestScheduleBackupArchivalUploadsEndedConversationsOnly(t *testing.T) {
	store := transcript.NewStore(t.TempDir())
	now := time.Now().UTC()
	if err := store.CreateConversation(transcript.VoiceConversation{ID: "ended-1", Status: transcript.StatusActive, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create ended-1: %v", err)
	}
	if err := store.EndConversation("ended-1", transcript.EndReasonUserEnded, now); err != nil {
		t.Fatalf("end ended-1: %v", err)
	}
	if err := store.CreateConversation(transcript.VoiceConversation{ID: "still-active", Status: transcript.StatusActive, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create still-active: %v", err)
	}

	archiver := &fakeArchiver{}
	s := NewScheduler(nil)
	if err := s.ScheduleBackupArchival("@every 10ms", store, archiver); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(archiver.archivedSessions()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	sessions := archiver.archivedSessions()
	if len(sessions) == 0 {
		t.Fatalf("expected at least one archival sweep to run")
	}
	for _, id := range sessions {
		if id != "ended-1" {
			t.Fatalf("expected only the ended conversation to be archived, got %q", id)
		}
	}
}

func TestScheduleDiscoverySyncRejectsInvalidSpec(t *testing.T) {
	idx, err := discovery.OpenIndex(":memory:")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	scanner := discovery.NewScanner(t.TempDir())

	s := NewScheduler(nil)
	if err := s.ScheduleDiscoverySync("not-a-cron-spec", idx, scanner); err == nil {
		t.Fatalf("expected invalid cron spec to be rejected")
	}
}
