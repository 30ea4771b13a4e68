// Package service owns the lifecycles of discovery jobs and buffering
// listeners.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yscope/log-ingestor/internal/buffering"
	"github.com/yscope/log-ingestor/internal/model"
	"github.com/yscope/log-ingestor/internal/scanner"
	"github.com/yscope/log-ingestor/internal/sqslistener"
)

// Factories construct the cloud clients a job needs. Production wiring
// builds real AWS clients; tests inject fakes.
type Factories struct {
	NewObjectLister func(ctx context.Context, creds model.Credentials, region string) (scanner.ObjectLister, error)
	NewQueueAPI     func(ctx context.Context, creds model.Credentials, region string) (sqslistener.QueueAPI, error)
}

// Settings hold the per-listener buffering parameters.
type Settings struct {
	SizeThreshold uint64
	IdleTimeout   time.Duration
	InboxSize     int
}

type jobKind string

const (
	jobKindScanner     jobKind = "scanner"
	jobKindSQSListener jobKind = "sqs_listener"
)

// job is a running worker handle. Cancelling is idempotent.
type job struct {
	kind   jobKind
	cancel context.CancelFunc
}

// Manager deduplicates buffering listeners by key and tracks running jobs
// so clients can cancel them. Listeners are never removed; they live until
// process exit.
type Manager struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*job
	listeners map[buffering.ListenerKey]*buffering.Listener

	submitter buffering.Submitter
	factories Factories
	settings  Settings
}

// NewManager creates an empty manager.
func NewManager(submitter buffering.Submitter, factories Factories, settings Settings) *Manager {
	return &Manager{
		jobs:      make(map[uuid.UUID]*job),
		listeners: make(map[buffering.ListenerKey]*buffering.Listener),
		submitter: submitter,
		factories: factories,
		settings:  settings,
	}
}

// CreateScannerJob spawns a scanner worker feeding the listener for the
// job's key and returns the new job's id.
func (m *Manager) CreateScannerJob(ctx context.Context, creds model.Credentials, params scanner.JobParams) (uuid.UUID, error) {
	log.Info().
		Str("bucket", params.Bucket).
		Str("key_prefix", params.KeyPrefix).
		Str("region", params.Region).
		Str("dataset", params.Dataset).
		Msg("Received scanner job creation request")

	client, err := m.factories.NewObjectLister(ctx, creds, params.Region)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create object store client: %w", err)
	}

	key := buffering.ListenerKey{
		Dataset:         params.Dataset,
		Region:          params.Region,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		Bucket:          params.Bucket,
	}
	sender := m.listenerFor(key).NewSender()

	worker := scanner.New(client, params, sender)
	return m.startJob(jobKindScanner, func(jobCtx context.Context) error {
		return worker.Run(jobCtx)
	}), nil
}

// CreateSQSListenerJob spawns a queue listener worker feeding the listener
// for the job's key and returns the new job's id.
func (m *Manager) CreateSQSListenerJob(ctx context.Context, creds model.Credentials, params sqslistener.JobParams) (uuid.UUID, error) {
	log.Info().
		Str("bucket", params.Bucket).
		Str("key_prefix", params.KeyPrefix).
		Str("region", params.Region).
		Str("queue_url", params.QueueURL).
		Str("dataset", params.Dataset).
		Msg("Received queue listener job creation request")

	client, err := m.factories.NewQueueAPI(ctx, creds, params.Region)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create queue client: %w", err)
	}

	key := buffering.ListenerKey{
		Dataset:         params.Dataset,
		Region:          params.Region,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		Bucket:          params.Bucket,
	}
	sender := m.listenerFor(key).NewSender()

	worker := sqslistener.New(client, params, sender)
	return m.startJob(jobKindSQSListener, func(jobCtx context.Context) error {
		return worker.Run(jobCtx)
	}), nil
}

// DeleteJob cancels the job named by idStr and removes it from the job
// table. The job's listener keeps running; other producers may feed it.
func (m *Manager) DeleteJob(idStr string) error {
	id, err := uuid.Parse(idStr)
	if err != nil {
		log.Warn().Str("job_id", idStr).Msg("Invalid job id format")
		return fmt.Errorf("%w: %s", model.ErrInvalidJobID, idStr)
	}

	m.mu.Lock()
	j, ok := m.jobs[id]
	if ok {
		delete(m.jobs, id)
	}
	m.mu.Unlock()

	if !ok {
		log.Warn().Str("job_id", idStr).Msg("Job not found for deletion")
		return fmt.Errorf("%w: %s", model.ErrJobNotFound, idStr)
	}
	j.cancel()
	log.Info().Str("job_id", idStr).Str("kind", string(j.kind)).Msg("Job cancelled and removed")
	return nil
}

// JobCount reports the number of running jobs.
func (m *Manager) JobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// ListenerCount reports the number of live listeners.
func (m *Manager) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// listenerFor returns the listener for key, creating and spawning it if
// none exists. Get-or-create is atomic under the table lock so concurrent
// creates for one key never duplicate a listener.
func (m *Manager) listenerFor(key buffering.ListenerKey) *buffering.Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.listeners[key]; ok {
		return l
	}
	log.Info().Str("listener", key.Tag()).Msg("Creating a new listener")
	l := buffering.Spawn(
		buffering.NewBuffer(key, m.settings.SizeThreshold),
		m.submitter,
		m.settings.IdleTimeout,
		m.settings.InboxSize,
	)
	m.listeners[key] = l
	return l
}

// startJob registers a cancellable worker goroutine and returns its id.
// Spawn happens outside the listener-table critical section.
func (m *Manager) startJob(kind jobKind, run func(ctx context.Context) error) uuid.UUID {
	jobCtx, cancel := context.WithCancel(context.Background())
	id := uuid.New()

	m.mu.Lock()
	m.jobs[id] = &job{kind: kind, cancel: cancel}
	m.mu.Unlock()

	go func() {
		err := run(jobCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("job_id", id.String()).Str("kind", string(kind)).Msg("Job execution failed")
			return
		}
		log.Info().Str("job_id", id.String()).Str("kind", string(kind)).Msg("Job exited")
	}()

	log.Info().Str("job_id", id.String()).Str("kind", string(kind)).Msg("Job started")
	return id
}
