package gcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"

	"cloud.google.com/go/storage"

	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/upload"
)

// GCSDestination writes videos to a Cloud Storage bucket. Objects are
// created only if absent, so a retried delivery reuses the first copy.
type GCSDestination struct {
	client *storage.Client
	bucket string
	prefix string
	log    *slog.Logger
}

func NewGCSDestination(client *storage.Client, bucket, prefix string, log *slog.Logger) *GCSDestination {
	if log == nil {
		log = slog.Default()
	}
	return &GCSDestination{client: client, bucket: bucket, prefix: prefix, log: log}
}

// ObjectName returns "<prefix>/<key>/<name>".
func ObjectName(prefix, key, name string) string {
	return path.Join(prefix, key, path.Base(name))
}

func (g *GCSDestination) Store(ctx context.Context, req upload.StoreRequest) (*models.DriveFile, error) {
	name := ObjectName(g.prefix, req.Key, req.Name)
	obj := g.client.Bucket(g.bucket).Object(name)

	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = req.MimeType
	w.Metadata = map[string]string{"description": req.Description}

	_, copyErr := io.Copy(w, req.Body)
	closeErr := w.Close()
	switch {
	case copyErr != nil && !isPreconditionFailed(copyErr):
		return nil, fmt.Errorf("failed to write to GCS: %w", copyErr)
	case closeErr != nil && !isPreconditionFailed(closeErr):
		return nil, fmt.Errorf("failed to finalize GCS write: %w", closeErr)
	}

	attrs := w.Attrs()
	if attrs == nil {
		g.log.Info("object already exists", "object", name)
		existing, err := obj.Attrs(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading existing object %s: %w", name, err)
		}
		attrs = existing
	}
	return g.toFile(attrs, req.Name), nil
}

func (g *GCSDestination) toFile(attrs *storage.ObjectAttrs, displayName string) *models.DriveFile {
	return &models.DriveFile{
		ID:             attrs.Name,
		Name:           displayName,
		MimeType:       attrs.ContentType,
		WebViewLink:    "https://storage.cloud.google.com/" + attrs.Bucket + "/" + (&url.URL{Path: attrs.Name}).EscapedPath(),
		WebContentLink: attrs.MediaLink,
	}
}

// Close releases the storage client.
func (g *GCSDestination) Close() error {
	return g.client.Close()
}
