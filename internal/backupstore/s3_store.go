// Package backupstore archives ended voice conversations to an
// S3-compatible bucket: conversation.json and transcript.jsonl are copied
// verbatim from internal/transcript.Store's on-disk layout. Grounded on
// the teacher's internal/artifacts.S3Store, generalized from a
// content-addressed artifact blob store to a two-file-per-session
// transcript archive.
package backupstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Config configures the S3-compatible backup target. A zero-value Bucket
// means backup is disabled; callers should check Enabled before
// constructing a Store.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Enabled reports whether cfg names a bucket to archive into.
func (cfg Config) Enabled() bool {
	return strings.TrimSpace(cfg.Bucket) != ""
}

// Store archives ended-conversation transcript files to S3.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewStore creates an S3-backed Store. cfg.Bucket must be non-empty.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("backupstore: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("backupstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ArchiveConversation uploads a session's conversation.json and
// transcript.jsonl, read from the paths transcript.Store.ArchiveFiles
// returns. Either file may be absent (e.g. a session that never
// accumulated transcript entries); a missing file is skipped rather than
// treated as an error.
func (s *Store) ArchiveConversation(ctx context.Context, sessionID, conversationPath, transcriptPath string) error {
	if err := s.putFile(ctx, sessionID, conversationFileName, conversationPath, "application/json"); err != nil {
		return fmt.Errorf("backupstore: archive conversation.json for %s: %w", sessionID, err)
	}
	if err := s.putFile(ctx, sessionID, transcriptFileName, transcriptPath, "application/x-ndjson"); err != nil {
		return fmt.Errorf("backupstore: archive transcript.jsonl for %s: %w", sessionID, err)
	}
	return nil
}

const (
	conversationFileName = "conversation.json"
	transcriptFileName   = "transcript.jsonl"
)

func (s *Store) putFile(ctx context.Context, sessionID, name, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	key := s.objectKey(sessionID, name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        f,
		ContentType: aws.String(contentType),
	})
	return err
}

// Fetch downloads a previously archived file (conversation.json or
// transcript.jsonl) for sessionID.
func (s *Store) Fetch(ctx context.Context, sessionID, name string) (io.ReadCloser, error) {
	key := s.objectKey(sessionID, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("backupstore: get object %s: %w", key, err)
	}
	return out.Body, nil
}

// Exists reports whether sessionID has an archived conversation.json.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	key := s.objectKey(sessionID, conversationFileName)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && strings.EqualFold(apiErr.ErrorCode(), "NotFound") {
		return false, nil
	}
	return false, fmt.Errorf("backupstore: head object %s: %w", key, err)
}

func (s *Store) objectKey(sessionID, name string) string {
	key := path.Join(sessionID, name)
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}
