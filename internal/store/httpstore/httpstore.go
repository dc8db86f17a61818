// Package httpstore implements the remote-HTTP flavor of the store
// contracts in internal/store: a thin client that proxies get_all/
// get/put/patch/delete to another switchgear instance's Discovery or
// Offer admin surface, per spec.md §4.6. Grounded on the teacher's
// exchange.PriceProvider HTTP client construction (shared *http.Client,
// baseURL + bearer token, JSON decode of the response body).
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"switchgear/internal/apperr"
	"switchgear/internal/store"
)

// Config carries DISCOVERY_STORE_HTTP_*/OFFER_STORE_HTTP_* fields from
// spec.md §6: base-url, a bearer token read from a file (rotatable
// without a process restart), and an optional custom root CA bundle.
type Config struct {
	BaseURL          string
	TokenFile        string
	TrustedRootsFile string
}

// client is the shared HTTP plumbing for the entity-specific stores
// below: it resolves a base URL + resource path into a request,
// attaches the bearer token (re-read from disk on every call so a
// rotated token takes effect without a restart), and maps transport/
// status-code failures onto apperr kinds.
type client struct {
	http    *http.Client
	baseURL string
	cfg     Config
}

func newClient(cfg Config) (*client, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	if cfg.TrustedRootsFile != "" {
		tlsClient, err := newTLSClient(cfg.TrustedRootsFile)
		if err != nil {
			return nil, err
		}
		httpClient = tlsClient
	}
	return &client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
	}, nil
}

func (c *client) token() (string, error) {
	if c.cfg.TokenFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.cfg.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read authorization token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apperr.Internal("failed to encode request body", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.Internal("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.token()
	if err != nil {
		return apperr.Internal("failed to load bearer token", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Internal("remote store request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return apperr.Internal("failed to decode remote store response", err)
			}
		}
		return nil
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return apperr.NotFound(string(respBody))
	case http.StatusConflict:
		return apperr.Conflict(string(respBody))
	case http.StatusUnprocessableEntity:
		return apperr.ReferentialIntegrity(string(respBody))
	case http.StatusUnauthorized:
		return apperr.Unauthorized(string(respBody))
	default:
		return apperr.Internal(fmt.Sprintf("remote store returned status %d", resp.StatusCode), nil)
	}
}

func query(partition string, page store.Page) string {
	q := "?"
	var parts []string
	if partition != "" {
		parts = append(parts, "partition="+partition)
	}
	if page.Page > 0 {
		parts = append(parts, "page="+strconv.Itoa(page.Page))
	}
	if page.PageSize > 0 {
		parts = append(parts, "page_size="+strconv.Itoa(page.PageSize))
	}
	return q + strings.Join(parts, "&")
}
