// Package upload delivers paid ad submissions to external storage and the
// tracking sheet, recording each completed step so a retry resumes
// instead of repeating work.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/notify"
	"github.com/viewheel/backend/internal/storage"
)

// DefaultName and DefaultMimeType fill in what the form leaves out.
const (
	DefaultName     = "upload.mp4"
	DefaultMimeType = "video/mp4"
)

// ErrNotConfigured means the service account or destination is missing.
var ErrNotConfigured = errors.New("Drive env vars not set")

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusStoring    Status = "storing"
	StatusTracking   Status = "tracking"
	StatusSorting    Status = "sorting"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Job represents one delivery attempt.
type Job struct {
	ID          string            `json:"id" msgpack:"id"`
	Tx          string            `json:"tx,omitempty" msgpack:"tx,omitempty"`
	FileName    string            `json:"fileName" msgpack:"fileName"`
	Size        int64             `json:"size" msgpack:"size"`
	Status      Status            `json:"status" msgpack:"status"`
	Progress    float64           `json:"progress" msgpack:"progress"`
	Stage       string            `json:"stage" msgpack:"stage"`
	File        *models.DriveFile `json:"file,omitempty" msgpack:"file,omitempty"`
	Skipped     []string          `json:"skipped,omitempty" msgpack:"skipped,omitempty"`
	Error       string            `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt" msgpack:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty" msgpack:"completedAt,omitempty"`
}

// StoreRequest is one file handed to a Destination.
type StoreRequest struct {
	// Key is unique per submission: the transaction signature, or the job
	// ID when there is none.
	Key         string
	Name        string
	MimeType    string
	Description string
	Body        io.Reader
}

// Destination persists the video.
type Destination interface {
	Store(ctx context.Context, req StoreRequest) (*models.DriveFile, error)
}

// Tracker keeps the tracking spreadsheet.
type Tracker interface {
	Append(ctx context.Context, rec models.UploadRecord) error
	SortByTimestamp(ctx context.Context) error
}

// Backends opens the external services for one request. The tracker is
// nil when no spreadsheet is configured.
type Backends interface {
	Open(ctx context.Context) (Destination, Tracker, error)
}

// Request is a validated submission ready for delivery.
type Request struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
	WhenISO  string
	Wallet   string
	Tx       string
}

// Manager runs deliveries and keeps their job state.
type Manager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	backends Backends
	ledger   storage.Store
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time
	airtime  *time.Location

	locksMu sync.Mutex
	txLocks map[string]*txLock
}

// txLock serializes deliveries of one transaction. It is dropped from
// the map when the last holder or waiter releases it.
type txLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a delivery manager. A nil ledger keeps records in memory.
func NewManager(backends Backends, ledger storage.Store, notifier notify.Notifier, log *slog.Logger) *Manager {
	if ledger == nil {
		ledger = storage.NewMemoryStore()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		jobs:     make(map[string]*Job),
		txLocks:  make(map[string]*txLock),
		backends: backends,
		ledger:   ledger,
		notifier: notifier,
		log:      log.With("component", "upload"),
		now:      time.Now,
		airtime:  Airtime,
	}
}

// GetJob retrieves a job by ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// LatestJobForTx returns the most recent delivery attempt for a
// transaction signature.
func (m *Manager) LatestJobForTx(tx string) (*Job, bool) {
	if tx == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Job
	for _, job := range m.jobs {
		if job.Tx != tx {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, false
	}
	return latest.clone(), true
}

// Submission returns the ledger record for a transaction.
func (m *Manager) Submission(ctx context.Context, tx string) (*models.SubmissionRecord, error) {
	return m.ledger.Get(ctx, tx)
}

// Submissions lists ledger records, most recently updated first.
func (m *Manager) Submissions(ctx context.Context, limit int) ([]*models.SubmissionRecord, error) {
	return m.ledger.List(ctx, limit)
}

// Configured reports whether the backends can be opened without a
// configuration error.
func (m *Manager) Configured() bool {
	if c, ok := m.backends.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return m.backends != nil
}

func (m *Manager) lockTx(tx string) func() {
	if tx == "" {
		return func() {}
	}
	m.locksMu.Lock()
	l, ok := m.txLocks[tx]
	if !ok {
		l = &txLock{}
		m.txLocks[tx] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.txLocks, tx)
		}
		m.locksMu.Unlock()
	}
}

// Process stores the file, appends the tracking row and sorts the sheet.
// Steps already recorded for the same transaction are skipped; the sort
// always runs.
func (m *Manager) Process(ctx context.Context, req Request) (*Job, error) {
	if req.Name == "" {
		req.Name = DefaultName
	}
	if req.MimeType == "" {
		req.MimeType = DefaultMimeType
	}

	job := &Job{
		ID:        uuid.New().String(),
		Tx:        req.Tx,
		FileName:  req.Name,
		Size:      req.Size,
		Status:    StatusProcessing,
		Stage:     "preparing",
		CreatedAt: m.now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	log := m.log.With("job", job.ID[:8], "tx", req.Tx, "name", req.Name)

	pstWhen, err := FormatAirtime(req.WhenISO, m.now(), m.airtime)
	if err != nil {
		m.markJobError(job, err)
		return m.snapshot(job), err
	}

	unlock := m.lockTx(req.Tx)
	defer unlock()

	rec, err := m.loadRecord(ctx, req)
	if err != nil {
		m.markJobError(job, err)
		return m.snapshot(job), err
	}
	rec.Attempts++

	dest, tracker, err := m.backends.Open(ctx)
	if err != nil {
		m.fail(ctx, job, rec, log, err)
		return m.snapshot(job), err
	}
	if c, ok := dest.(io.Closer); ok {
		defer c.Close()
	}

	// Stage 1: store the video
	if rec.File != nil {
		m.skip(job, "store")
		log.Info("file already stored", "fileId", rec.File.ID)
	} else {
		m.updateJobStatus(job, StatusStoring, "storing video")
		key := req.Tx
		if key == "" {
			key = job.ID
		}
		file, err := dest.Store(ctx, StoreRequest{
			Key:         key,
			Name:        req.Name,
			MimeType:    req.MimeType,
			Description: m.description(req),
			Body:        req.Body,
		})
		if err != nil {
			m.fail(ctx, job, rec, log, err)
			return m.snapshot(job), err
		}
		rec.File = file
		rec.Status = models.SubmissionStored
		m.save(ctx, rec, log)
		log.Info("file stored", "fileId", file.ID)
	}

	m.mu.Lock()
	job.File = rec.File
	m.mu.Unlock()

	if tracker != nil {
		// Stage 2: append the tracking row
		if rec.RowAppended {
			m.skip(job, "append")
		} else {
			m.updateJobStatus(job, StatusTracking, "appending tracking row")
			row := models.UploadRecord{
				Name:      req.Name,
				SizeHuman: FormatSizeMB(req.Size),
				Wallet:    req.Wallet,
				When:      pstWhen,
				Tx:        req.Tx,
			}
			if err := tracker.Append(ctx, row); err != nil {
				m.fail(ctx, job, rec, log, err)
				return m.snapshot(job), err
			}
			rec.RowAppended = true
			rec.Status = models.SubmissionTracked
			m.save(ctx, rec, log)
		}

		// Stage 3: sort by airtime
		m.updateJobStatus(job, StatusSorting, "sorting tracking sheet")
		if err := tracker.SortByTimestamp(ctx); err != nil {
			m.fail(ctx, job, rec, log, err)
			return m.snapshot(job), err
		}
		rec.Status = models.SubmissionSorted
	}

	rec.LastError = ""
	m.save(ctx, rec, log)
	m.markJobComplete(job)
	log.Info("submission delivered", "attempts", rec.Attempts)

	if m.notifier != nil {
		m.notifier.Notify(ctx, notify.Notice{
			Level:       notify.LevelSuccess,
			Title:       "New ad submission",
			Description: fmt.Sprintf("%s (%s) for %s\nwallet %s\ntx %s", req.Name, FormatSizeMB(req.Size), pstWhen, req.Wallet, req.Tx),
		})
	}
	return m.snapshot(job), nil
}

func (m *Manager) loadRecord(ctx context.Context, req Request) (*models.SubmissionRecord, error) {
	fresh := &models.SubmissionRecord{
		Tx:        req.Tx,
		Wallet:    req.Wallet,
		Name:      req.Name,
		SizeBytes: req.Size,
		WhenISO:   req.WhenISO,
	}
	if req.Tx == "" {
		return fresh, nil
	}
	rec, err := m.ledger.Get(ctx, req.Tx)
	if errors.Is(err, storage.ErrNotFound) {
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return rec, nil
}

func (m *Manager) save(ctx context.Context, rec *models.SubmissionRecord, log *slog.Logger) {
	if rec.Tx == "" {
		return
	}
	if err := m.ledger.Save(ctx, rec); err != nil {
		log.Error("ledger write failed", "error", err)
	}
}

func (m *Manager) description(req Request) string {
	meta := struct {
		WhenISO    string `json:"whenISO,omitempty"`
		Wallet     string `json:"wallet"`
		Tx         string `json:"tx"`
		UploadedAt string `json:"uploadedAt"`
	}{
		WhenISO:    req.WhenISO,
		Wallet:     req.Wallet,
		Tx:         req.Tx,
		UploadedAt: m.now().UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	b, _ := json.MarshalIndent(meta, "", "  ")
	return string(b)
}

func (m *Manager) fail(ctx context.Context, job *Job, rec *models.SubmissionRecord, log *slog.Logger, err error) {
	log.Error("delivery failed", "stage", job.Stage, "error", err)
	rec.LastError = err.Error()
	if rec.File == nil {
		rec.Status = models.SubmissionError
	}
	m.save(ctx, rec, log)
	m.markJobError(job, err)

	if m.notifier != nil {
		m.notifier.Notify(ctx, notify.Notice{
			Level:       notify.LevelError,
			Title:       "Ad delivery failed",
			Description: fmt.Sprintf("%s: %v\ntx %s", job.Stage, err, rec.Tx),
		})
	}
}

func (m *Manager) snapshot(job *Job) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return job.clone()
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

func (j *Job) clone() *Job {
	c := *j
	c.Skipped = append([]string(nil), j.Skipped...)
	return &c
}

func (m *Manager) skip(job *Job, stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Skipped = append(job.Skipped, stage)
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage

	// Storing: 0-80%, Tracking: 80-90%, Sorting: 90-100%
	switch status {
	case StatusStoring:
		job.Progress = 0
	case StatusTracking:
		job.Progress = 80
	case StatusSorting:
		job.Progress = 90
	}
}

// markJobComplete marks job as complete (thread-safe).
func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Stage = "done"
	job.Progress = 100
	now := m.now()
	job.CompletedAt = &now
}

// markJobError marks job as failed (thread-safe).
func (m *Manager) markJobError(job *Job, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = err.Error()
	now := m.now()
	job.CompletedAt = &now
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := m.now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Finished() {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
				removed++
			}
		}
	}
	return removed
}
