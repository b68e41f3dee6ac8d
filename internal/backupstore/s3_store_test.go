package backupstore

import "testing"

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatalf("expected empty config to be disabled")
	}
	if !(Config{Bucket: "  my-bucket  "}).Enabled() {
		t.Fatalf("expected config with a bucket to be enabled")
	}
}

func TestObjectKeyJoinsPrefixSessionAndFile(t *testing.T) {
	s := &Store{bucket: "b"}

	if got, want := s.objectKey("sess-1", conversationFileName), "sess-1/conversation.json"; got != want {
		t.Fatalf("objectKey() = %q, want %q", got, want)
	}

	s.prefix = "archive/voice"
	if got, want := s.objectKey("sess-1", transcriptFileName), "archive/voice/sess-1/transcript.jsonl"; got != want {
		t.Fatalf("objectKey() with prefix = %q, want %q", got, want)
	}
}
