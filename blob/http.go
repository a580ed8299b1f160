package blob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPStore talks to an Azure Blob Storage compatible REST endpoint,
// authenticating with a SAS token.
type HTTPStore struct {
	BaseURL   string
	Container string
	sasToken  string
	client    *resty.Client
}

func NewHTTPStore(baseURL, container, sasToken string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Container: container,
		sasToken:  strings.TrimPrefix(sasToken, "?"),
		client:    resty.New().SetTimeout(timeout),
	}
}

// AccountURL is the public endpoint of a storage account.
func AccountURL(account string) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net", account)
}

func (s *HTTPStore) blobURL(name string) string {
	u := fmt.Sprintf("%s/%s/%s", s.BaseURL, url.PathEscape(s.Container), escapeName(name))
	if s.sasToken != "" {
		u += "?" + s.sasToken
	}
	return u
}

func escapeName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (s *HTTPStore) Upload(ctx context.Context, name string, data []byte) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("x-ms-blob-type", "BlockBlob").
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Put(s.blobURL(name))
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("upload %s: server returned %s", name, resp.Status())
	}
	return nil
}

func (s *HTTPStore) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		Get(s.blobURL(name))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download %s: server returned %s", name, resp.Status())
	}
	return resp.Body(), nil
}
