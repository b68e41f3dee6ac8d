package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/hooks"
)

const (
	indexFileName        = "index.json"
	conversationFileName = "conversation.json"
	transcriptFileName   = "transcript.jsonl"
	metadataFileName     = "metadata.json"

	titleDefaultPrefix = "Voice session "
	titleWordLimit     = 6
	titleCharLimit     = 40
)

// Store is the disk-backed repository for voice conversations and their
// transcripts. Disk layout, grounded directly on the reference
// implementation:
//
//	<baseDir>/index.json
//	<baseDir>/<session_id>/conversation.json   (atomic .tmp+rename write)
//	<baseDir>/<session_id>/transcript.jsonl     (append-only)
//
// index.json is rewritten only by CreateConversation, EndConversation,
// UpdateStatus, PruneOrphans, and the title-enrichment path inside
// AddEntry/AddEntries;
// conversation.json is rewritten by every mutating operation.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// NewStore constructs a Store rooted at baseDir (created lazily).
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) conversationDir(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID)
}

// ArchiveFiles returns the on-disk paths of a conversation's
// conversation.json and transcript.jsonl, for callers (e.g.
// internal/backupstore) that need to read the raw files rather than the
// decoded VoiceConversation/Entry types. Does not check existence.
func (s *Store) ArchiveFiles(sessionID string) (conversationPath, transcriptPath string) {
	dir := s.conversationDir(sessionID)
	return filepath.Join(dir, conversationFileName), filepath.Join(dir, transcriptFileName)
}

// writeAtomic marshals v as indented JSON and writes it via a sibling
// .tmp file followed by a rename, so readers never observe a partial
// write.
func writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) readIndex() ([]indexEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, indexFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []indexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) writeIndex(entries []indexEntry) error {
	return writeAtomic(filepath.Join(s.baseDir, indexFileName), entries)
}

// PruneOrphans drops index.json entries whose conversation directory no
// longer exists on disk (deleted out-of-band, e.g. by manual cleanup or
// a retention script) and returns how many were removed. Intended to be
// called periodically by a maintenance sweep, not from the request path.
func (s *Store) PruneOrphans() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndex()
	if err != nil {
		return 0, err
	}
	kept := entries[:0:0]
	removed := 0
	for _, e := range entries {
		if _, statErr := os.Stat(s.conversationDir(e.ID)); statErr != nil {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.writeIndex(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) patchIndexEntry(sessionID string, patch func(*indexEntry)) error {
	entries, err := s.readIndex()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == sessionID {
			patch(&entries[i])
			break
		}
	}
	return s.writeIndex(entries)
}

// CreateConversation creates the session directory, touches
// transcript.jsonl, writes conversation.json, and appends an index row.
func (s *Store) CreateConversation(conv VoiceConversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.conversationDir(conv.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, transcriptFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	f.Close()

	if conv.DisconnectHistory == nil {
		conv.DisconnectHistory = []DisconnectEvent{}
	}
	if err := writeAtomic(filepath.Join(dir, conversationFileName), conv); err != nil {
		return err
	}

	entries, err := s.readIndex()
	if err != nil {
		return err
	}
	entries = append(entries, indexEntry{ID: conv.ID, Title: conv.Title, Status: conv.Status, CreatedAt: conv.CreatedAt})
	return s.writeIndex(entries)
}

// GetConversation returns the conversation document for sessionID, or
// (zero, false) if it does not exist.
func (s *Store) GetConversation(sessionID string) (VoiceConversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getConversationLocked(sessionID)
}

func (s *Store) getConversationLocked(sessionID string) (VoiceConversation, bool, error) {
	path := filepath.Join(s.conversationDir(sessionID), conversationFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return VoiceConversation{}, false, nil
	}
	if err != nil {
		return VoiceConversation{}, false, err
	}
	var conv VoiceConversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return VoiceConversation{}, false, err
	}
	return conv, true, nil
}

// UpdateConversation atomically rewrites conversation.json only; it never
// touches index.json.
func (s *Store) UpdateConversation(conv VoiceConversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(filepath.Join(s.conversationDir(conv.ID), conversationFileName), conv)
}

// UpdateStatus rewrites status in both conversation.json and index.json,
// stamping updated_at with now.
func (s *Store) UpdateStatus(sessionID string, status Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok, err := s.getConversationLocked(sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	conv.Status = status
	conv.UpdatedAt = now
	if err := writeAtomic(filepath.Join(s.conversationDir(sessionID), conversationFileName), conv); err != nil {
		return err
	}
	return s.patchIndexEntry(sessionID, func(e *indexEntry) { e.Status = status })
}

// EndConversation sets status=ended, end_reason, ended_at, and
// duration_seconds, updating both conversation.json and index.json.
func (s *Store) EndConversation(sessionID string, reason EndReason, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok, err := s.getConversationLocked(sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	conv.Status = StatusEnded
	conv.EndReason = reason
	conv.EndedAt = &now
	conv.UpdatedAt = now
	dur := now.Sub(conv.CreatedAt).Seconds()
	conv.DurationSeconds = &dur
	if err := writeAtomic(filepath.Join(s.conversationDir(sessionID), conversationFileName), conv); err != nil {
		return err
	}
	return s.patchIndexEntry(sessionID, func(e *indexEntry) { e.Status = StatusEnded; e.EndReason = reason })
}

// maybeSetTitle updates the session title from the first user message,
// but only while the title is still the auto-generated "Voice session "
// prefix (spec.md §4.5's title-enrichment-exactly-once rule). Must be
// called with s.mu held.
func (s *Store) maybeSetTitle(sessionID, text string, now time.Time) error {
	conv, ok, err := s.getConversationLocked(sessionID)
	if err != nil {
		return err
	}
	if !ok || !strings.HasPrefix(conv.Title, titleDefaultPrefix) {
		return nil
	}
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) > titleWordLimit {
		words = words[:titleWordLimit]
	}
	title := strings.Join(words, " ")
	if len(title) > titleCharLimit {
		title = title[:titleCharLimit-3] + "..."
	}
	if title == "" {
		return nil
	}
	conv.Title = title
	conv.UpdatedAt = now
	if err := writeAtomic(filepath.Join(s.conversationDir(sessionID), conversationFileName), conv); err != nil {
		return err
	}
	return s.patchIndexEntry(sessionID, func(e *indexEntry) { e.Title = title })
}

// AddEntry appends one entry to transcript.jsonl. The session directory
// and transcript.jsonl must already exist from CreateConversation. A
// user-role entry triggers title enrichment.
func (s *Store) AddEntry(sessionID string, entry Entry, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendJSONL(filepath.Join(s.conversationDir(sessionID), transcriptFileName), entry); err != nil {
		return err
	}
	hooks.TriggerAsync(context.Background(), hooks.NewEvent(hooks.EventTranscriptAppended, string(entry.Role)).WithSession(sessionID))
	if entry.Role == RoleUser {
		return s.maybeSetTitle(sessionID, entry.Content, now)
	}
	return nil
}

// AddEntries batch-appends entries, enriching the title from the first
// user entry in the batch only.
func (s *Store) AddEntries(sessionID string, entries []Entry, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.conversationDir(sessionID), transcriptFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, e := range entries {
		if e.Role == RoleUser {
			return s.maybeSetTitle(sessionID, e.Content, now)
		}
	}
	return nil
}

func appendJSONL(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// GetResumptionContext reads transcript.jsonl and maps it to the OpenAI
// Realtime API item schema used to resume a voice conversation after
// reconnect.
func (s *Store) GetResumptionContext(sessionID string) ([]ResumptionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.conversationDir(sessionID), transcriptFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []ResumptionItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		switch e.Role {
		case RoleUser:
			items = append(items, ResumptionItem{Type: "message", Role: "user", Content: []ResumptionContent{{Type: "input_text", Text: e.Content}}})
		case RoleAssistant:
			items = append(items, ResumptionItem{Type: "message", Role: "assistant", Content: []ResumptionContent{{Type: "output_text", Text: e.Content}}})
		case RoleToolCall:
			items = append(items, ResumptionItem{Type: "function_call", Name: e.ToolName, CallID: e.CallID, Arguments: e.Content})
		case RoleToolResult:
			items = append(items, ResumptionItem{Type: "function_call_output", CallID: e.CallID, Output: e.Content})
		}
	}
	return items, scanner.Err()
}

// ListConversations returns every row from index.json (fast listing,
// never reads per-conversation documents).
func (s *Store) ListConversations() ([]VoiceConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]VoiceConversation, 0, len(entries))
	for _, e := range entries {
		out = append(out, VoiceConversation{ID: e.ID, Title: e.Title, Status: e.Status, CreatedAt: e.CreatedAt, EndReason: e.EndReason})
	}
	return out, nil
}

// crossInterfaceMessage is the Runtime's own provider-API transcript line
// shape: role plus a content-block array.
type crossInterfaceMessage struct {
	Role    string                  `json:"role"`
	Content []crossInterfaceContent `json:"content"`
}

type crossInterfaceContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WriteCrossInterfaceTranscript mirrors user/assistant turns into the
// Runtime's own `<runtimeHome>/projects/<projectID>/sessions/<sessionID>/transcript.jsonl`
// so voice sessions are discoverable from the chat interface too.
// The file is always touch-created even if entries is empty, matching the
// reference behavior that discoverability must not depend on any turn
// having happened yet.
func WriteCrossInterfaceTranscript(runtimeHome, projectID, sessionID string, entries []Entry) error {
	dir := filepath.Join(runtimeHome, "projects", projectID, "sessions", sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "transcript.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if e.Role != RoleUser && e.Role != RoleAssistant {
			continue
		}
		line := crossInterfaceMessage{
			Role:    string(e.Role),
			Content: []crossInterfaceContent{{Type: "text", Text: e.Content}},
		}
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteCrossInterfaceMetadata writes metadata.json into the Runtime's own
// session directory, once, at creation time. The "name" field freezes the
// conversation's initial title and is never refreshed afterward — this
// staleness is intentional and matches the reference implementation
// (spec.md §8 scenario 7).
func WriteCrossInterfaceMetadata(runtimeHome, projectID, sessionID string, conv VoiceConversation) error {
	dir := filepath.Join(runtimeHome, "projects", projectID, "sessions", sessionID)
	metadata := map[string]any{
		"session_id": sessionID,
		"bundle":     "voice",
		"name":       conv.Title,
		"created":    conv.CreatedAt,
		"model":      "voice",
		"turn_count": 0,
	}
	return writeAtomic(filepath.Join(dir, metadataFileName), metadata)
}
