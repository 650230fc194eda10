// mock_backends.go - In-memory Drive and Sheets stand-ins for upload tests
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/upload"
)

// StoredFile is one file captured by MockBackends.
type StoredFile struct {
	Request upload.StoreRequest
	Data    []byte
}

// MockBackends implements upload.Backends, upload.Destination and
// upload.Tracker in memory. Err fields make the matching call fail.
type MockBackends struct {
	mu sync.Mutex

	Files []StoredFile
	Rows  []models.UploadRecord
	Sorts int
	Opens int

	NoTracker    bool
	Unconfigured bool

	OpenErr   error
	StoreErr  error
	AppendErr error
	SortErr   error
}

// NewMockBackends creates an empty mock with a tracker configured.
func NewMockBackends() *MockBackends {
	return &MockBackends{}
}

func (m *MockBackends) Configured() bool {
	return !m.Unconfigured
}

func (m *MockBackends) Open(context.Context) (upload.Destination, upload.Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Opens++
	if m.OpenErr != nil {
		return nil, nil, m.OpenErr
	}
	if m.NoTracker {
		return m, nil, nil
	}
	return m, m, nil
}

func (m *MockBackends) Store(_ context.Context, req upload.StoreRequest) (*models.DriveFile, error) {
	var data []byte
	if req.Body != nil {
		var err error
		if data, err = io.ReadAll(req.Body); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return nil, m.StoreErr
	}
	req.Body = nil
	m.Files = append(m.Files, StoredFile{Request: req, Data: data})
	id := fmt.Sprintf("file-%d", len(m.Files))
	return &models.DriveFile{
		ID:             id,
		Name:           req.Name,
		MimeType:       req.MimeType,
		WebViewLink:    "https://drive.example/view/" + id,
		WebContentLink: "https://drive.example/download/" + id,
	}, nil
}

func (m *MockBackends) Append(_ context.Context, rec models.UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Rows = append(m.Rows, rec)
	return nil
}

// SortByTimestamp orders Rows by the When column as strings, which is
// what the sheet sort does with plain text values.
func (m *MockBackends) SortByTimestamp(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sorts++
	if m.SortErr != nil {
		return m.SortErr
	}
	sort.SliceStable(m.Rows, func(i, j int) bool { return m.Rows[i].When < m.Rows[j].When })
	return nil
}

// Counts returns how many files, rows and sorts were recorded.
func (m *MockBackends) Counts() (files, rows, sorts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Files), len(m.Rows), m.Sorts
}

// SetErrors replaces the injected failures.
func (m *MockBackends) SetErrors(store, appendErr, sortErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoreErr, m.AppendErr, m.SortErr = store, appendErr, sortErr
}

// ErrUpstream is a stand-in for a Google API failure.
var ErrUpstream = errors.New("upstream unavailable")
