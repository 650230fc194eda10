package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/upload"
)

const driveFileFields = "id, name, mimeType, webViewLink, webContentLink"

// DriveDestination uploads videos into a (shared) Drive folder.
type DriveDestination struct {
	svc    *drive.Service
	parent string
}

func NewDriveDestination(svc *drive.Service, parentFolderID string) *DriveDestination {
	return &DriveDestination{svc: svc, parent: parentFolderID}
}

// Store streams the body to Drive with the submission metadata in the
// file description.
func (d *DriveDestination) Store(ctx context.Context, req upload.StoreRequest) (*models.DriveFile, error) {
	meta := &drive.File{
		Name:        req.Name,
		Parents:     []string{d.parent},
		MimeType:    req.MimeType,
		Description: req.Description,
	}
	created, err := d.svc.Files.Create(meta).
		Media(req.Body, googleapi.ContentType(req.MimeType)).
		Fields(driveFileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive upload: %w", err)
	}
	return &models.DriveFile{
		ID:             created.Id,
		Name:           created.Name,
		MimeType:       created.MimeType,
		WebViewLink:    created.WebViewLink,
		WebContentLink: created.WebContentLink,
	}, nil
}
