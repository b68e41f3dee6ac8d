package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSessionFixture(t *testing.T, root, projectDirName, sessionID string, meta *sessionMetadata, mtime time.Time) {
	t.Helper()
	dir := filepath.Join(root, "projects", projectDirName, "sessions", sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	transcript := filepath.Join(dir, "transcript.jsonl")
	if err := os.WriteFile(transcript, []byte(`{"role":"user","content":"hi"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	if err := os.Chtimes(transcript, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if meta != nil {
		data, _ := json.Marshal(meta)
		if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
			t.Fatalf("write metadata: %v", err)
		}
	}
}

func TestListSessionsSortsByMostRecentAndSkipsSubSessions(t *testing.T) {
	root := t.TempDir()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	writeSessionFixture(t, root, "-tmp-proj-a", "sess-old", &sessionMetadata{Name: "old one"}, older)
	writeSessionFixture(t, root, "-tmp-proj-a", "sess-new", nil, newer)
	writeSessionFixture(t, root, "-tmp-proj-a", "sess-new_sub1", nil, newer) // sub-session, must be skipped

	scanner := NewScanner(root)
	sessions, err := scanner.ListSessions(0, "")
	if err != nil {
		t.Fatalf("list_sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 discoverable sessions, got %d: %+v", len(sessions), sessions)
	}
	if sessions[0].SessionID != "sess-new" {
		t.Fatalf("expected most recent session first, got %q", sessions[0].SessionID)
	}
	if sessions[1].Name != "old one" {
		t.Fatalf("expected metadata name to be loaded, got %q", sessions[1].Name)
	}
	if sessions[1].ProjectPath != "/tmp/proj/a" {
		t.Fatalf("expected decoded project path /tmp/proj/a, got %q", sessions[1].ProjectPath)
	}
}

func TestListSessionsRespectsLimitAndProjectFilter(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeSessionFixture(t, root, "-tmp-proj-a", "sess-1", nil, now)
	writeSessionFixture(t, root, "-tmp-proj-b", "sess-2", nil, now)

	scanner := NewScanner(root)
	filtered, err := scanner.ListSessions(0, "b")
	if err != nil {
		t.Fatalf("list_sessions: %v", err)
	}
	if len(filtered) != 1 || filtered[0].SessionID != "sess-2" {
		t.Fatalf("expected only proj-b session, got %+v", filtered)
	}

	limited, err := scanner.ListSessions(1, "")
	if err != nil {
		t.Fatalf("list_sessions: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to cap results at 1, got %d", len(limited))
	}
}

func TestGetSessionFindsAcrossProjects(t *testing.T) {
	root := t.TempDir()
	writeSessionFixture(t, root, "-tmp-proj-a", "sess-x", &sessionMetadata{Description: "desc"}, time.Now())

	scanner := NewScanner(root)
	sess, ok, err := scanner.GetSession("sess-x")
	if err != nil || !ok {
		t.Fatalf("get_session: ok=%v err=%v", ok, err)
	}
	if sess.Description != "desc" {
		t.Fatalf("expected metadata description loaded, got %+v", sess)
	}

	_, ok, err = scanner.GetSession("does-not-exist")
	if err != nil {
		t.Fatalf("get_session: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing session")
	}
}

func TestListProjectsAggregatesCountsAndSortsByName(t *testing.T) {
	root := t.TempDir()
	writeSessionFixture(t, root, "-tmp-zeta", "s1", nil, time.Now())
	writeSessionFixture(t, root, "-tmp-alpha", "s2", nil, time.Now())
	writeSessionFixture(t, root, "-tmp-alpha", "s3", nil, time.Now())

	scanner := NewScanner(root)
	projects, err := scanner.ListProjects()
	if err != nil {
		t.Fatalf("list_projects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	if projects[0].ProjectName != "alpha" || projects[0].SessionCount != 2 {
		t.Fatalf("expected alpha first with 2 sessions, got %+v", projects[0])
	}
	if projects[1].ProjectName != "zeta" || projects[1].SessionCount != 1 {
		t.Fatalf("expected zeta second with 1 session, got %+v", projects[1])
	}
}

func TestDecodeProjectIDOnlyDecodesLeadingDash(t *testing.T) {
	if got := DecodeProjectID("-tmp-sam-dev-proj"); got != "/tmp/sam/dev/proj" {
		t.Fatalf("unexpected decode: %q", got)
	}
	if got := DecodeProjectID("plainname"); got != "plainname" {
		t.Fatalf("expected non-dash-prefixed name unchanged, got %q", got)
	}
}
