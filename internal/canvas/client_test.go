package canvas

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"canvas-grade-sync/internal/config"
	"canvas-grade-sync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(config.CanvasConfig{
		Timeout:       5 * time.Second,
		PerPage:       100,
		PageWorkers:   5,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, baseURL, "test-token")
}

func TestTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/self", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json+canvas-string-ids", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"id":"42","name":"Test Student"}`)
	}))
	defer server.Close()

	user, err := testClient(server.URL).TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, "Test Student", user.Name)
}

func TestTestConnection_BadToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).TestConnection(context.Background())
	assert.ErrorIs(t, err, errors.ErrConnectionFailed)
}

func TestGet_RetriesOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			fmt.Fprint(w, `{"id":"42","name":"Test Student"}`)
		}
	}))
	defer server.Close()

	user, err := testClient(server.URL).TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_ExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.get(context.Background(), "/users/self", nil)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.get(context.Background(), "/courses/999", nil)
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetCourses_PaginatedConcurrently(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "active", r.URL.Query().Get("enrollment_state"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		page := r.URL.Query().Get("page")
		switch page {
		case "", "1":
			// Canvas carries the original query params in its Link URLs.
			base := fmt.Sprintf("%s/api/v1/courses?enrollment_state=active&include%%5B%%5D=term&per_page=100",
				server.URL)
			w.Header().Set("Link",
				fmt.Sprintf(`<%s&page=2>; rel="next",<%s&page=3>; rel="last"`, base, base))
			fmt.Fprint(w, `[{"id":"1","name":"Course 1"}]`)
		case "2":
			fmt.Fprint(w, `[{"id":"2","name":"Course 2"}]`)
		case "3":
			fmt.Fprint(w, `[{"id":"3","name":"Course 3","term":{"id":"t1","name":"Fall 2024"}}]`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))
	defer server.Close()

	courses, err := testClient(server.URL).GetCourses(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.Equal(t, "1", courses[0].ID)
	assert.Equal(t, "2", courses[1].ID)
	assert.Equal(t, "3", courses[2].ID)
	require.NotNil(t, courses[2].Term)
	assert.Equal(t, "Fall 2024", courses[2].Term.Name)
}

func TestGetCourses_SequentialNextLinks(t *testing.T) {
	// No rel="last": the client walks next-links one at a time.
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":"2","name":"Course 2"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses?page=2&per_page=100>; rel="next"`, server.URL))
		fmt.Fprint(w, `[{"id":"1","name":"Course 1"}]`)
	}))
	defer server.Close()

	courses, err := testClient(server.URL).GetCourses(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, courses, 2)
}

func TestGetCourses_IncrementalSince(t *testing.T) {
	since := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-01-15T12:00:00Z", r.URL.Query().Get("updated_since"))
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	courses, err := testClient(server.URL).GetCourses(context.Background(), &since)
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestGetSubmissions_BulkEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/courses/101/students/submissions", r.URL.Path)
		assert.Equal(t, "self", r.URL.Query().Get("student_ids[]"))
		fmt.Fprint(w, `[{"assignment_id":"a1","score":9.5,"workflow_state":"graded","missing":false}]`)
	}))
	defer server.Close()

	submissions, err := testClient(server.URL).GetSubmissions(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, submissions, 1)
	assert.Equal(t, "a1", submissions[0].AssignmentID)
	require.NotNil(t, submissions[0].Score)
	assert.Equal(t, 9.5, *submissions[0].Score)
	assert.True(t, submissions[0].Submitted())
}
