// Package gcp talks to Google Drive, Sheets and Cloud Storage on behalf
// of the upload endpoint using a service account.
package gcp

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"github.com/viewheel/backend/internal/config"
)

// Scopes requested for the service account token.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/devstorage.read_write",
}

// NewHTTPClient returns a client that signs requests with a token minted
// from the service account's JWT.
func NewHTTPClient(ctx context.Context, cfg config.GoogleConfig) (*http.Client, error) {
	if cfg.ServiceAccountEmail == "" || cfg.ServiceAccountPrivateKey == "" {
		return nil, errors.New("service account email and private key must be provided")
	}
	conf := &jwt.Config{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: cfg.PrivateKeyPEM(),
		Scopes:     Scopes,
		TokenURL:   google.JWTTokenURL,
	}
	return conf.Client(ctx), nil
}
