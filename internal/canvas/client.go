package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"canvas-grade-sync/internal/config"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/metrics"
	"canvas-grade-sync/internal/model"
	"canvas-grade-sync/pkg/errors"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client wraps the Canvas LMS REST API for a single owner's credentials.
// Every list endpoint is paginated via the Link response header; pages
// after the first are fetched concurrently when the header exposes the
// last page, otherwise the next-links are walked sequentially.
type Client struct {
	apiBase    string
	token      string
	cfg        config.CanvasConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func NewClient(cfg config.CanvasConfig, baseURL, token string) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		apiBase: strings.TrimRight(baseURL, "/") + "/api/v1",
		token:   token,
		cfg:     cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.Get(),
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

type page struct {
	body []byte
	link string
}

// get performs one authenticated GET with the retry budget applied.
// endpoint is either relative to the API base or an absolute pagination
// URL taken from a Link header.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*page, error) {
	reqURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		reqURL = c.apiBase + "/" + strings.TrimLeft(endpoint, "/")
	}
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		// Canvas returns numeric ids as strings with this accept header.
		req.Header.Set("Accept", "application/json+canvas-string-ids")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)
		if err != nil {
			metrics.ObserveAPICall(http.MethodGet, endpoint, "error", duration)
			lastErr = errors.NewRetryableError(err, "HTTP request failed")
			c.log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt+1).
				Msg("Canvas request failed, retrying")
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		metrics.ObserveAPICall(http.MethodGet, endpoint, strconv.Itoa(resp.StatusCode), duration)
		c.log.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode).
			Dur("duration", duration).Msg("Canvas API call")

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				lastErr = errors.NewRetryableError(readErr, "failed to read response body")
				continue
			}
			return &page{body: body, link: resp.Header.Get("Link")}, nil
		case retryableStatus(resp.StatusCode):
			lastErr = errors.NewRetryableError(
				fmt.Errorf("HTTP %d", resp.StatusCode), "canvas service unavailable")
			c.log.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).
				Int("attempt", attempt+1).Msg("Retryable Canvas error")
			continue
		default:
			// Client errors are not retried.
			return nil, fmt.Errorf("canvas API error: HTTP %d for %s", resp.StatusCode, endpoint)
		}
	}

	return nil, lastErr
}

// getPaginated fetches every page of a list endpoint and returns the raw
// page bodies in order-independent fashion. When the first page's Link
// header names the last page, pages 2..N are fetched by a bounded worker
// pool; a pool failure degrades to sequential next-link walking.
func (c *Client) getPaginated(ctx context.Context, endpoint string, params url.Values) ([][]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("per_page", strconv.Itoa(c.cfg.PerPage))

	first, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	bodies := [][]byte{first.body}
	links := parseLinkHeader(first.link)

	pageURLs := numberedPageURLs(links)
	if len(pageURLs) > 0 {
		pages, err := c.fetchConcurrent(ctx, pageURLs)
		if err == nil {
			return append(bodies, pages...), nil
		}
		c.log.Warn().Err(err).Str("endpoint", endpoint).
			Msg("Concurrent page fetch failed, falling back to sequential")
	}

	// Sequential walk of rel="next" links.
	next := links["next"]
	for next != "" {
		p, err := c.get(ctx, next, nil)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, p.body)
		next = parseLinkHeader(p.link)["next"]
	}

	return bodies, nil
}

func (c *Client) fetchConcurrent(ctx context.Context, pageURLs []string) ([][]byte, error) {
	type result struct {
		idx  int
		body []byte
		err  error
	}

	workers := c.cfg.PageWorkers
	if workers > len(pageURLs) {
		workers = len(pageURLs)
	}

	jobs := make(chan int, len(pageURLs))
	results := make(chan result, len(pageURLs))
	for i := range pageURLs {
		jobs <- i
	}
	close(jobs)

	for w := 0; w < workers; w++ {
		go func() {
			for idx := range jobs {
				p, err := c.get(ctx, pageURLs[idx], nil)
				if err != nil {
					results <- result{idx: idx, err: err}
					continue
				}
				results <- result{idx: idx, body: p.body}
			}
		}()
	}

	bodies := make([][]byte, len(pageURLs))
	for range pageURLs {
		res := <-results
		if res.err != nil {
			return nil, res.err
		}
		bodies[res.idx] = res.body
	}

	return bodies, nil
}

func decodePages[T any](bodies [][]byte) ([]T, error) {
	var all []T
	for _, body := range bodies {
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("failed to decode page: %w", err)
		}
		all = append(all, items...)
	}
	return all, nil
}

// TestConnection verifies the token with a single call to /users/self.
func (c *Client) TestConnection(ctx context.Context) (*model.CanvasUser, error) {
	p, err := c.get(ctx, "/users/self", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrConnectionFailed, err.Error())
	}

	var user model.CanvasUser
	if err := json.Unmarshal(p.body, &user); err != nil {
		return nil, fmt.Errorf("%w: failed to decode identity: %s", errors.ErrConnectionFailed, err.Error())
	}

	c.log.Info().Str("canvas_user", user.Name).Msg("Canvas connection verified")
	return &user, nil
}

// GetCourses returns the owner's active enrollments. A non-nil since
// narrows the fetch to courses updated after that instant (incremental
// sync).
func (c *Client) GetCourses(ctx context.Context, since *time.Time) ([]model.CanvasCourse, error) {
	params := url.Values{}
	params.Set("enrollment_state", "active")
	params.Add("include[]", "term")
	if since != nil {
		params.Set("updated_since", since.UTC().Format(time.RFC3339))
	}

	bodies, err := c.getPaginated(ctx, "/courses", params)
	if err != nil {
		return nil, err
	}

	courses, err := decodePages[model.CanvasCourse](bodies)
	if err != nil {
		return nil, err
	}

	c.log.Info().Int("count", len(courses)).Bool("incremental", since != nil).
		Msg("Fetched courses from Canvas")
	return courses, nil
}

func (c *Client) GetAssignmentGroups(ctx context.Context, courseID string) ([]model.CanvasAssignmentGroup, error) {
	bodies, err := c.getPaginated(ctx, fmt.Sprintf("/courses/%s/assignment_groups", courseID), nil)
	if err != nil {
		return nil, err
	}
	return decodePages[model.CanvasAssignmentGroup](bodies)
}

func (c *Client) GetAssignments(ctx context.Context, courseID string) ([]model.CanvasAssignment, error) {
	bodies, err := c.getPaginated(ctx, fmt.Sprintf("/courses/%s/assignments", courseID), nil)
	if err != nil {
		return nil, err
	}
	return decodePages[model.CanvasAssignment](bodies)
}

// GetSubmissions fetches the owner's submissions for a whole course in
// one bulk call.
func (c *Client) GetSubmissions(ctx context.Context, courseID string) ([]model.CanvasSubmission, error) {
	params := url.Values{}
	params.Add("student_ids[]", "self")

	bodies, err := c.getPaginated(ctx, fmt.Sprintf("/courses/%s/students/submissions", courseID), params)
	if err != nil {
		return nil, err
	}
	return decodePages[model.CanvasSubmission](bodies)
}

// GetSubmission fetches a single assignment's submission. Used as a
// fallback when the bulk endpoint is unavailable.
func (c *Client) GetSubmission(ctx context.Context, courseID, assignmentID string) (*model.CanvasSubmission, error) {
	endpoint := fmt.Sprintf("/courses/%s/assignments/%s/submissions/self", courseID, assignmentID)
	p, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var submission model.CanvasSubmission
	if err := json.Unmarshal(p.body, &submission); err != nil {
		return nil, fmt.Errorf("failed to decode submission: %w", err)
	}
	return &submission, nil
}
