package gcp

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// UpstreamPayload returns the raw response body of a Google API error,
// or "" when err did not come from one.
func UpstreamPayload(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Body
	}
	return ""
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
