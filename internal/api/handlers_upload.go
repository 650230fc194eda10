// handlers_upload.go - Ad delivery handlers
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/viewheel/backend/internal/gcp"
	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/storage"
	"github.com/viewheel/backend/internal/upload"
)

const mimeMsgpack = "application/msgpack"

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	deliverer Deliverer
	log       *slog.Logger
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(deliverer Deliverer, log *slog.Logger) UploadHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UploadHandlerImpl{
		deliverer: deliverer,
		log:       log.With("component", "api"),
	}
}

type driveUploadResponse struct {
	OK    bool              `json:"ok"`
	File  *models.DriveFile `json:"file"`
	JobID string            `json:"jobId"`
}

// HandleDriveUpload accepts the multipart form (file, name, whenISO,
// wallet, tx), stores the video and appends the tracking row.
func (h *UploadHandlerImpl) HandleDriveUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return h.formError(err)
	}

	if !h.deliverer.Configured() {
		return NewNotConfiguredError(upload.ErrNotConfigured.Error())
	}

	whenISO := strings.TrimSpace(c.FormValue("whenISO"))
	if _, err := upload.ParseWhen(whenISO); err != nil {
		return NewValidationError("whenISO", err.Error())
	}

	name := firstNonEmpty(c.FormValue("name"), fh.Filename, upload.DefaultName)
	mimeType := firstNonEmpty(fh.Header.Get(echo.HeaderContentType), upload.DefaultMimeType)

	src, err := fh.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	job, err := h.deliverer.Process(c.Request().Context(), upload.Request{
		Name:     name,
		MimeType: mimeType,
		Size:     fh.Size,
		Body:     src,
		WhenISO:  whenISO,
		Wallet:   c.FormValue("wallet"),
		Tx:       c.FormValue("tx"),
	})
	if err != nil {
		if errors.Is(err, upload.ErrNotConfigured) {
			return NewNotConfiguredError(err.Error())
		}
		attrs := []any{"error", err, "tx", c.FormValue("tx")}
		if payload := gcp.UpstreamPayload(err); payload != "" {
			attrs = append(attrs, "payload", payload)
		}
		h.log.Error("drive upload failed", attrs...)
		return NewUpstreamError(err)
	}

	return c.JSON(http.StatusOK, driveUploadResponse{OK: true, File: job.File, JobID: job.ID})
}

// formError maps a failed form read. Only an absent file part is the
// client's fault; a body cut short or timed out is a server-side failure.
func (h *UploadHandlerImpl) formError(err error) error {
	var httpErr *echo.HTTPError
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return NewBadRequestError("Missing file", nil)
	case errors.As(err, &httpErr):
		return httpErr
	}
	h.log.Error("reading upload form failed", "error", err)
	return NewInternalError("Failed to read upload", err)
}

// HandleGetJob returns delivery job state as JSON, or msgpack when asked.
func (h *UploadHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.deliverer.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), mimeMsgpack) {
		data, err := msgpack.Marshal(job)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, mimeMsgpack, data)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleGetSubmission returns the ledger record for a transaction.
func (h *UploadHandlerImpl) HandleGetSubmission(c echo.Context) error {
	tx := c.Param("tx")
	rec, err := h.deliverer.Submission(c.Request().Context(), tx)
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("submission", tx)
	}
	if err != nil {
		return NewInternalError("failed to read submission", err)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleListSubmissions returns recent ledger records (?limit=, default 50).
func (h *UploadHandlerImpl) HandleListSubmissions(c echo.Context) error {
	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return NewValidationError("limit", "limit must be a positive integer")
		}
		limit = n
	}
	list, err := h.deliverer.Submissions(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to list submissions", err)
	}
	if list == nil {
		list = []*models.SubmissionRecord{}
	}
	return c.JSON(http.StatusOK, list)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
