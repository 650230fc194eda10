package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/viewheel/backend/internal/config"
	"github.com/viewheel/backend/internal/upload"
)

// Factory builds fresh Google clients for each delivery. It implements
// upload.Backends.
type Factory struct {
	cfg config.GoogleConfig
	log *slog.Logger

	// HTTPClient replaces the service-account client when set.
	HTTPClient *http.Client
	// Per-service options applied after the HTTP client.
	DriveOptions  []option.ClientOption
	SheetsOptions []option.ClientOption
	GCSOptions    []option.ClientOption
}

func NewFactory(cfg config.GoogleConfig, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{cfg: cfg, log: log.With("component", "gcp")}
}

// Configured reports whether Open can succeed without touching the network.
func (f *Factory) Configured() bool {
	if !f.cfg.HasCredentials() {
		return false
	}
	return f.cfg.Backend != config.BackendGCS || f.cfg.GCSBucket != ""
}

// Open returns the destination selected by configuration and, when a
// spreadsheet is configured, the tracker.
func (f *Factory) Open(ctx context.Context) (upload.Destination, upload.Tracker, error) {
	if !f.Configured() {
		return nil, nil, upload.ErrNotConfigured
	}

	hc := f.HTTPClient
	if hc == nil {
		var err error
		if hc, err = NewHTTPClient(ctx, f.cfg); err != nil {
			return nil, nil, err
		}
	}
	base := []option.ClientOption{option.WithHTTPClient(hc)}

	var tracker upload.Tracker
	if f.cfg.SheetsSpreadsheetID != "" {
		svc, err := sheets.NewService(ctx, append(base, f.SheetsOptions...)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sheets client: %w", err)
		}
		tracker = NewSheetTracker(svc, f.cfg.SheetsSpreadsheetID, f.cfg.SheetsRange, f.cfg.SheetTitle())
	}

	if f.cfg.Backend == config.BackendGCS {
		client, err := storage.NewClient(ctx, append(base, f.GCSOptions...)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		return NewGCSDestination(client, f.cfg.GCSBucket, f.cfg.DriveParentFolderID, f.log), tracker, nil
	}

	svc, err := drive.NewService(ctx, append(base, f.DriveOptions...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return NewDriveDestination(svc, f.cfg.DriveParentFolderID), tracker, nil
}
