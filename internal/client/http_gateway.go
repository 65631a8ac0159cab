// Package client implements the session gateway over the HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
	"github.com/inkwell-labs/inkwell/backend/internal/session"
)

const defaultRequestTimeout = 10 * time.Second

// GatewayConfig assembles an HTTP gateway bound to one bearer token.
type GatewayConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTPGateway talks to the API on behalf of a single authenticated
// user. It satisfies session.Gateway.
type HTTPGateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPGateway validates the configuration and returns a gateway.
func NewHTTPGateway(cfg GatewayConfig) (*HTTPGateway, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("client: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("client: bearer token is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGateway{baseURL: base, token: cfg.Token, httpClient: httpClient, logger: logger}, nil
}

type apiError struct {
	Code     string `json:"error"`
	Message  string `json:"message,omitempty"`
	Content  string `json:"content,omitempty"`
	Revision int64  `json:"revision,omitempty"`
}

type saveContentRequest struct {
	Content      string `json:"content"`
	BaseRevision int64  `json:"base_revision"`
}

type createVersionRequest struct {
	Content string `json:"content"`
}

type presenceRequest struct {
	CursorPosition int64  `json:"cursor_position"`
	Color          string `json:"color,omitempty"`
}

// FetchDocument implements session.Gateway.
func (g *HTTPGateway) FetchDocument(ctx context.Context, documentID string) (session.DocumentInfo, error) {
	var doc session.DocumentInfo
	err := g.do(ctx, http.MethodGet, g.documentPath(documentID, ""), nil, &doc)
	return doc, err
}

// FetchContent implements session.Gateway.
func (g *HTTPGateway) FetchContent(ctx context.Context, documentID string) (session.Snapshot, error) {
	var snapshot session.Snapshot
	err := g.do(ctx, http.MethodGet, g.documentPath(documentID, "content"), nil, &snapshot)
	return snapshot, err
}

// SaveContent implements session.Gateway. A 409 carrying the current
// remote snapshot maps to documents.ErrStaleRevision.
func (g *HTTPGateway) SaveContent(ctx context.Context, documentID, content string, baseRevision int64) (session.Snapshot, error) {
	var snapshot session.Snapshot
	err := g.do(ctx, http.MethodPut, g.documentPath(documentID, "content"),
		saveContentRequest{Content: content, BaseRevision: baseRevision}, &snapshot)
	return snapshot, err
}

// CreateVersion implements session.Gateway.
func (g *HTTPGateway) CreateVersion(ctx context.Context, documentID, content string) (session.Version, error) {
	var version session.Version
	err := g.do(ctx, http.MethodPost, g.documentPath(documentID, "versions"),
		createVersionRequest{Content: content}, &version)
	return version, err
}

// ListVersions implements session.Gateway.
func (g *HTTPGateway) ListVersions(ctx context.Context, documentID string) ([]session.Version, error) {
	var versions []session.Version
	err := g.do(ctx, http.MethodGet, g.documentPath(documentID, "versions"), nil, &versions)
	return versions, err
}

// ListCollaborators implements session.Gateway.
func (g *HTTPGateway) ListCollaborators(ctx context.Context, documentID string) ([]session.Collaborator, error) {
	var collaborators []session.Collaborator
	err := g.do(ctx, http.MethodGet, g.documentPath(documentID, "collaborators"), nil, &collaborators)
	return collaborators, err
}

// ListCommentThreads implements session.Gateway.
func (g *HTTPGateway) ListCommentThreads(ctx context.Context, documentID string) ([]session.CommentThread, error) {
	var threads []session.CommentThread
	err := g.do(ctx, http.MethodGet, g.documentPath(documentID, "comments"), nil, &threads)
	return threads, err
}

// UpsertPresence implements session.Gateway.
func (g *HTTPGateway) UpsertPresence(ctx context.Context, documentID string, cursorPosition int64, color string) error {
	return g.do(ctx, http.MethodPut, g.documentPath(documentID, "presence"),
		presenceRequest{CursorPosition: cursorPosition, Color: color}, nil)
}

// ListPresence implements session.Gateway.
func (g *HTTPGateway) ListPresence(ctx context.Context, documentID string) ([]session.Presence, error) {
	var presence []session.Presence
	err := g.do(ctx, http.MethodGet, g.documentPath(documentID, "presence"), nil, &presence)
	return presence, err
}

// DeletePresence implements session.Gateway.
func (g *HTTPGateway) DeletePresence(ctx context.Context, documentID string) error {
	return g.do(ctx, http.MethodDelete, g.documentPath(documentID, "presence"), nil, nil)
}

func (g *HTTPGateway) documentPath(documentID, suffix string) string {
	path := g.baseURL + "/api/documents/" + url.PathEscape(documentID)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}

func (g *HTTPGateway) do(ctx context.Context, method, target string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+g.token)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := g.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, target, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode >= http.StatusBadRequest {
		return g.decodeError(response, result)
	}
	if result == nil || response.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// decodeError maps the API's error envelope onto the domain sentinels
// the synchronizer understands. A stale-revision rejection also fills
// the caller's snapshot with the current remote state.
func (g *HTTPGateway) decodeError(response *http.Response, result any) error {
	var payload apiError
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return fmt.Errorf("client: http %d", response.StatusCode)
	}

	switch {
	case response.StatusCode == http.StatusConflict && payload.Code == "stale_revision":
		if snapshot, ok := result.(*session.Snapshot); ok {
			snapshot.Content = payload.Content
			snapshot.Revision = payload.Revision
		}
		return fmt.Errorf("%w: remote revision %d", documents.ErrStaleRevision, payload.Revision)
	case response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", documents.ErrNotFound, payload.Code)
	case response.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", documents.ErrAccessDenied, payload.Code)
	default:
		g.logger.Debug("client.request_failed",
			zap.Int("status", response.StatusCode),
			zap.String("code", payload.Code))
		return fmt.Errorf("client: http %d: %s", response.StatusCode, payload.Code)
	}
}
