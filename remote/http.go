package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
	"github.com/sestako/eunio-app-sub009/store"
)

// HTTPStore talks to a self-hosted sync server over JSON/HTTP with an opaque
// bearer token. Token issuance belongs to the app shell.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPStore creates a client for the sync server at baseURL.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// PushDocument implements Store.
func (s *HTTPStore) PushDocument(ctx context.Context, doc *store.PreferenceDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	url := fmt.Sprintf("%s/api/v1/preferences/%s", s.baseURL, doc.UserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build push request")
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.Sync("push_document", apperrors.ErrCodeSyncNoConnectivity, err)
	}
	defer resp.Body.Close()

	return classifyStatus("push_document", resp)
}

// PullDocument implements Store.
func (s *HTTPStore) PullDocument(ctx context.Context, userID string) (*store.PreferenceDocument, error) {
	url := fmt.Sprintf("%s/api/v1/preferences/%s", s.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build pull request")
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Sync("pull_document", apperrors.ErrCodeSyncNoConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := classifyStatus("pull_document", resp); err != nil {
		return nil, err
	}

	doc := &store.PreferenceDocument{}
	if err := json.NewDecoder(resp.Body).Decode(doc); err != nil {
		return nil, apperrors.Sync("pull_document", apperrors.ErrCodeSyncFailed,
			errors.Wrap(err, "failed to decode remote document"))
	}
	return doc, nil
}

// PullLatestBackup implements Store.
func (s *HTTPStore) PullLatestBackup(ctx context.Context, userID string) ([]byte, error) {
	url := fmt.Sprintf("%s/api/v1/users/%s/backups/latest", s.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build backup request")
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Sync("pull_latest_backup", apperrors.ErrCodeSyncNoConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := classifyStatus("pull_latest_backup", resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

// classifyStatus maps HTTP status codes onto the error taxonomy: 4xx means
// the remote refused the request and retrying is pointless; 5xx is transient.
func classifyStatus(operation string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.Sync(operation, apperrors.ErrCodeSyncRejected,
			errors.Errorf("remote returned %s", resp.Status))
	default:
		return apperrors.Sync(operation, apperrors.ErrCodeSyncFailed,
			errors.Errorf("remote returned %s", resp.Status))
	}
}
