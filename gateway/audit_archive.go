// Copyright 2025 SQLWard
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"sqlward/platform/gateway/sqlguard"
)

// s3Putter is the slice of the S3 API the archiver needs. Tests substitute
// an in-memory implementation.
type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AuditArchiver batches policy violation events and writes them to S3 as
// JSONL objects, one object per flush. Events are delivered via the global
// audit callback; the archiver never blocks the request path.
type AuditArchiver struct {
	client s3Putter
	cfg    ArchiveConfig
	logger *log.Logger

	mu      sync.Mutex
	pending []*sqlguard.AuditEvent

	flushCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewAuditArchiver creates an archiver backed by AWS S3.
func NewAuditArchiver(ctx context.Context, cfg ArchiveConfig) (*AuditArchiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("audit archive bucket is required")
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newAuditArchiver(s3.NewFromConfig(awsCfg), cfg), nil
}

func newAuditArchiver(client s3Putter, cfg ArchiveConfig) *AuditArchiver {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "sqlward-audit"
	}

	a := &AuditArchiver{
		client:  client,
		cfg:     cfg,
		logger:  log.New(os.Stdout, "[AUDIT_ARCHIVE] ", log.LstdFlags),
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	a.wg.Add(1)
	go a.flushLoop()

	return a
}

// Record queues an audit event for archival. Safe to call from the audit
// callback on the request path.
func (a *AuditArchiver) Record(event *sqlguard.AuditEvent) {
	if event == nil {
		return
	}

	a.mu.Lock()
	a.pending = append(a.pending, event)
	full := len(a.pending) >= a.cfg.BatchSize
	a.mu.Unlock()

	if full {
		select {
		case a.flushCh <- struct{}{}:
		default:
		}
	}
}

// flushLoop drains pending events on a timer and on batch-full signals.
func (a *AuditArchiver) flushLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.flushCh:
			a.flush()
		case <-a.done:
			a.flush()
			return
		}
	}
}

// flush writes all pending events as one JSONL object. Failed batches are
// re-queued so a transient S3 outage doesn't drop violations.
func (a *AuditArchiver) flush() {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range batch {
		if err := enc.Encode(event); err != nil {
			a.logger.Printf("Failed to encode audit event: %v", err)
		}
	}

	key := a.objectKey(time.Now().UTC())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		a.logger.Printf("Failed to archive %d audit events to s3://%s/%s: %v (re-queuing)",
			len(batch), a.cfg.Bucket, key, err)
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		a.mu.Unlock()
		return
	}

	a.logger.Printf("Archived %d audit events to s3://%s/%s", len(batch), a.cfg.Bucket, key)
}

// objectKey partitions objects by date for lifecycle rules and Athena scans.
func (a *AuditArchiver) objectKey(now time.Time) string {
	return fmt.Sprintf("%s/%s/%s-%s.jsonl",
		a.cfg.Prefix,
		now.Format("2006/01/02"),
		now.Format("150405"),
		uuid.New().String()[:8],
	)
}

// Close flushes remaining events and stops the background loop.
func (a *AuditArchiver) Close() {
	close(a.done)
	a.wg.Wait()
}
