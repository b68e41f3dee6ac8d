package config

import "time"

// ExperienceConfig is the minimal configuration surface the voice/chat
// Experience Server needs at startup: where Runtime sessions live on
// disk, how the HTTP/voice listener is bound, and the bounds the
// Session Backend and Voice Connection modules enforce at runtime.
//
// It is the only configuration type in this package: the Experience
// Server is a single-tenant, single-process deployment.
type ExperienceConfig struct {
	// RuntimeHome is the root directory Session Discovery scans
	// (<RuntimeHome>/projects/*/sessions/*) and the Transcript Store's
	// cross-interface mirror writes into.
	RuntimeHome string `yaml:"runtime_home"`

	// VoiceSessionsRoot is the Transcript Store's own base directory
	// for conversation.json/index.json/transcript.jsonl. Defaults to
	// <RuntimeHome>/voice-sessions when empty.
	VoiceSessionsRoot string `yaml:"voice_sessions_root"`

	// DiscoveryIndexPath is the sqlite file backing the durable
	// secondary discovery index. Defaults to
	// <RuntimeHome>/discovery-index.db when empty.
	DiscoveryIndexPath string `yaml:"discovery_index_path"`

	// BindAddress is the HTTP listener address for both the generic
	// and /apps/voice/* route tables.
	BindAddress string `yaml:"bind_address"`

	// APIKey authenticates bearer/X-API-Key requests to protected
	// routes. Comparison is constant-time; an empty key disables auth
	// checks entirely (local/dev use only).
	APIKey string `yaml:"api_key"`

	// EventQueueMaxSize is decoded but not read outside this package:
	// every voice connection's event queue is created at
	// eventqueue.MaxSize whatever this value is.
	EventQueueMaxSize int `yaml:"event_queue_max_size"`

	// HeartbeatInterval controls the SSE heartbeat cadence on
	// /apps/voice/events.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// ApprovalTimeout is decoded but not read outside this package; the
	// voice approval system takes no timeout from it.
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`

	// EphemeralTokenSecret signs the short-lived SDP bearer tokens issued
	// by GET /apps/voice/session. Falls back to APIKey when empty.
	EphemeralTokenSecret string `yaml:"ephemeral_token_secret"`

	// EphemeralTokenTTL bounds how long an issued SDP token is valid.
	EphemeralTokenTTL time.Duration `yaml:"ephemeral_token_ttl"`

	// AssistantName, Model, Voice are surfaced verbatim by
	// /apps/voice/api/status.
	AssistantName string `yaml:"assistant_name"`
	Model         string `yaml:"model"`
	Voice         string `yaml:"voice"`

	// DiscoverySyncCron and TranscriptCompactionCron and
	// BackupArchivalCron are standard 5-field (or "@every ..." shorthand)
	// cron expressions for internal/cronjobs.Scheduler. Empty disables
	// the corresponding sweep.
	DiscoverySyncCron        string `yaml:"discovery_sync_cron"`
	TranscriptCompactionCron string `yaml:"transcript_compaction_cron"`
	BackupArchivalCron       string `yaml:"backup_archival_cron"`

	// BackupS3Bucket, if set, enables internal/backupstore archival of
	// ended voice conversations. Region/Endpoint/Prefix/credentials mirror
	// backupstore.Config.
	BackupS3Bucket          string `yaml:"backup_s3_bucket"`
	BackupS3Region          string `yaml:"backup_s3_region"`
	BackupS3Endpoint        string `yaml:"backup_s3_endpoint"`
	BackupS3Prefix          string `yaml:"backup_s3_prefix"`
	BackupS3AccessKeyID     string `yaml:"backup_s3_access_key_id"`
	BackupS3SecretAccessKey string `yaml:"backup_s3_secret_access_key"`
	BackupS3UsePathStyle    bool   `yaml:"backup_s3_use_path_style"`
}

// DefaultExperienceConfig returns the Experience Server's baseline
// configuration for local/dev use.
func DefaultExperienceConfig() ExperienceConfig {
	return ExperienceConfig{
		BindAddress:              "127.0.0.1:8787",
		EventQueueMaxSize:        10000,
		HeartbeatInterval:        5 * time.Second,
		ApprovalTimeout:          2 * time.Minute,
		EphemeralTokenTTL:        time.Minute,
		AssistantName:            "Assistant",
		DiscoverySyncCron:        "*/5 * * * *",
		TranscriptCompactionCron: "0 * * * *",
		BackupArchivalCron:       "*/15 * * * *",
	}
}

// LoadExperienceConfig reads and merges a config file the same way
// LoadRaw does (YAML/JSON5, $include support, env var expansion), then
// decodes it onto the defaults.
func LoadExperienceConfig(path string) (ExperienceConfig, error) {
	cfg := DefaultExperienceConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := LoadRaw(path)
	if err != nil {
		return cfg, err
	}
	if err := decodeExperienceRaw(raw, &cfg); err != nil {
		return cfg, err
	}
	if cfg.VoiceSessionsRoot == "" && cfg.RuntimeHome != "" {
		cfg.VoiceSessionsRoot = cfg.RuntimeHome + "/voice-sessions"
	}
	if cfg.DiscoveryIndexPath == "" && cfg.RuntimeHome != "" {
		cfg.DiscoveryIndexPath = cfg.RuntimeHome + "/discovery-index.db"
	}
	return cfg, nil
}
