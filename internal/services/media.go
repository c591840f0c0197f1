package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lynxfm/lynx/internal/models"
	"github.com/lynxfm/lynx/internal/shared"
)

// maxErrorBody bounds how much of an error response body is kept for
// diagnostics.
const maxErrorBody = 8 << 10

// TokenSource resolves a usable access token immediately before an
// authenticated request, so a just-refreshed token is always the one sent.
// Implemented by session.Guard.
type TokenSource interface {
	Authorized(ctx context.Context) (string, error)
}

// StatusError is a non-2xx media server response, preserved verbatim. The
// media server's authentication contract has been observed rejecting every
// tried scheme with symmetrical 401s, so the status, body, and the exact
// headers sent are kept for diagnosis instead of being mapped to a generic
// message.
type StatusError struct {
	Status      int
	Body        []byte
	HeadersSent http.Header

	kind error
}

func newStatusError(resp *http.Response, sent http.Header) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	redacted := sent.Clone()
	if auth := redacted.Get("Authorization"); auth != "" {
		redacted.Set("Authorization", shared.RedactAuthorization(auth))
	}

	e := &StatusError{Status: resp.StatusCode, Body: body, HeadersSent: redacted}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.kind = shared.ErrAuthRejected
	case http.StatusNotFound:
		e.kind = shared.ErrTrackNotFound
	}
	return e
}

func (e *StatusError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "media server returned status %d", e.Status)
	if len(e.Body) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.TrimSpace(string(e.Body)))
	}
	if len(e.HeadersSent) > 0 {
		sb.WriteString(" (headers sent:")
		for name, values := range e.HeadersSent {
			fmt.Fprintf(&sb, " %s=%s", name, strings.Join(values, ","))
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// MediaService issues requests to the media server. Authenticated calls pull
// their token from the [TokenSource] per request.
type MediaService struct {
	serverURL  string
	tokens     TokenSource
	httpClient *http.Client
	logger     *log.Logger
}

// NewMediaService creates a media client for the given server base URL.
func NewMediaService(serverURL string, tokens TokenSource, client *http.Client, logger *log.Logger) *MediaService {
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &MediaService{
		serverURL:  serverURL,
		tokens:     tokens,
		httpClient: client,
		logger:     logger,
	}
}

// Health probes the server's /health endpoint. No token is attached; the
// probe works independently of authentication state.
func (m *MediaService) Health(ctx context.Context) error {
	resp, sent, err := m.get(ctx, "/health", false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, newStatusError(resp, sent))
	}

	return nil
}

// RandomTrack resolves a random track reference. The server has returned
// both JSON objects and bare-text IDs for this endpoint, so extraction is
// tolerant of either shape.
func (m *MediaService) RandomTrack(ctx context.Context) (*models.Track, error) {
	resp, sent, err := m.get(ctx, "/random", true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp, sent)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading random track response: %v", shared.ErrTransport, err)
	}

	return extractTrack(body)
}

// StreamTrack requests a track's audio bytes. The returned body is a lazy
// byte stream: the caller consumes it incrementally so playback can begin
// before the download completes, and must close it. Size is the reported
// content length, or -1 when unknown.
func (m *MediaService) StreamTrack(ctx context.Context, ref string) (body io.ReadCloser, size int64, err error) {
	if ref == "" {
		return nil, 0, fmt.Errorf("%w: track reference", shared.ErrMissingArgument)
	}

	resp, sent, err := m.get(ctx, "/tracks/"+ref, true)
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, 0, newStatusError(resp, sent)
	}

	return resp.Body, resp.ContentLength, nil
}

// FetchTrack downloads one track into w, returning the byte count. Used by
// the prefetch engine; failures carry the reference's own error and never
// affect sibling fetches.
func (m *MediaService) FetchTrack(ctx context.Context, ref string, w io.Writer) (int64, error) {
	body, _, err := m.StreamTrack(ctx, ref)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("%w: downloading %s: %v", shared.ErrTransport, ref, err)
	}

	return n, nil
}

// get issues a single GET. When authed is set the token is resolved from the
// TokenSource first; the headers actually sent are returned for diagnostics.
func (m *MediaService) get(ctx context.Context, path string, authed bool) (*http.Response, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.serverURL+path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if authed {
		token, err := m.tokens.Authorized(ctx)
		if err != nil {
			return nil, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}

	return resp, req.Header, nil
}

// extractTrack parses a random-track response: a JSON object carrying
// track_id or id (plus optional display metadata), or a bare-text ID.
func extractTrack(body []byte) (*models.Track, error) {
	var payload struct {
		TrackID string `json:"track_id"`
		ID      string `json:"id"`
		Title   string `json:"title"`
		Artist  string `json:"artist"`
	}

	if err := json.Unmarshal(body, &payload); err == nil {
		track := &models.Track{Title: payload.Title, Artist: payload.Artist}
		switch {
		case payload.TrackID != "":
			track.ID = payload.TrackID
		case payload.ID != "":
			track.ID = payload.ID
		default:
			return nil, fmt.Errorf("%w: no track ID in response %q", shared.ErrTrackNotFound, body)
		}
		return track, nil
	}

	id := strings.TrimSpace(string(body))
	if id == "" {
		return nil, fmt.Errorf("%w: empty random track response", shared.ErrTrackNotFound)
	}

	return &models.Track{ID: id}, nil
}
