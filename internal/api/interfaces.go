// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/upload"
)

// UploadHandler handles ad delivery and its status lookups
type UploadHandler interface {
	HandleDriveUpload(c echo.Context) error
	HandleGetJob(c echo.Context) error
	HandleGetSubmission(c echo.Context) error
	HandleListSubmissions(c echo.Context) error
}

// CheckoutHandler serves payment quotes
type CheckoutHandler interface {
	HandleQuote(c echo.Context) error
}

// ProgressStreamer streams delivery progress over WebSocket
type ProgressStreamer interface {
	HandleProgress(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Deliverer runs paid submissions through storage and the tracking sheet.
// upload.Manager implements it; tests substitute their own.
type Deliverer interface {
	Configured() bool
	Process(ctx context.Context, req upload.Request) (*upload.Job, error)
	GetJob(id string) (*upload.Job, bool)
	LatestJobForTx(tx string) (*upload.Job, bool)
	Submission(ctx context.Context, tx string) (*models.SubmissionRecord, error)
	Submissions(ctx context.Context, limit int) ([]*models.SubmissionRecord, error)
}

var _ Deliverer = (*upload.Manager)(nil)
