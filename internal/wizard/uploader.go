package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/viewheel/backend/internal/models"
)

// HTTPUploader posts submissions to the drive-upload endpoint.
type HTTPUploader struct {
	Endpoint string
	Client   *http.Client
}

type uploadResponse struct {
	OK    bool              `json:"ok"`
	File  *models.DriveFile `json:"file"`
	Error string            `json:"error"`
}

// Upload streams the file as multipart form data.
func (u *HTTPUploader) Upload(ctx context.Context, req UploadRequest) (*models.DriveFile, error) {
	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, contentType := multipartBody(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, body)
	if err != nil {
		body.Close()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		if out.Error == "" {
			out.Error = fmt.Sprintf("upload failed with status %d", resp.StatusCode)
		}
		return nil, errors.New(out.Error)
	}
	if out.File == nil {
		return nil, errors.New("upload response has no file")
	}
	return out.File, nil
}

// multipartBody writes the form through a pipe so the video is never
// held in memory.
func multipartBody(req UploadRequest) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(mw, req))
	}()
	return pr, mw.FormDataContentType()
}

func writeForm(mw *multipart.Writer, req UploadRequest) error {
	fields := []struct{ key, value string }{
		{"name", req.Name},
		{"whenISO", req.WhenISO},
		{"wallet", req.Wallet},
		{"tx", req.Tx},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.key, f.value); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.File.Name()))
	h.Set("Content-Type", req.File.ContentType())
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	src, err := req.File.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}
