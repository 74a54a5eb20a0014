package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"course-catalog/internal/catalog"
	"course-catalog/internal/clock/system"
	"course-catalog/internal/id/uuid"
	queuememory "course-catalog/internal/queue/memory"
	storagememory "course-catalog/internal/storage/memory"
	"course-catalog/internal/store/jsonfile"
	"course-catalog/internal/tasks"
)

type scriptedEnricher struct {
	mu     sync.Mutex
	course catalog.Course
	err    error
	block  chan struct{}
}

func (e *scriptedEnricher) Enrich(ctx context.Context, req catalog.EnrichRequest) (catalog.Course, error) {
	e.mu.Lock()
	block := e.block
	course := e.course
	err := e.err
	e.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return catalog.Course{}, ctx.Err()
		}
	}
	if err != nil {
		return catalog.Course{}, err
	}
	course.Link = req.Link
	if !catalog.Known(course.CourseName) && req.CourseName != "" {
		course.CourseName = req.CourseName
	}
	return course, nil
}

type apiFixture struct {
	server   *httptest.Server
	store    *jsonfile.Store
	enricher *scriptedEnricher
}

func newAPIFixture(t *testing.T, cfg Config) *apiFixture {
	t.Helper()

	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "courses.json"), system.New(), zap.NewNop())
	require.NoError(t, err)

	enricher := &scriptedEnricher{course: catalog.Course{
		Provider:   "Coursera",
		Summary:    "Extracted summary.",
		Length:     "8 Hours",
		HandsOn:    "Yes",
		SkillLevel: "Novice",
		Difficulty: "Low",
	}}

	q := queuememory.NewQueue(16)
	runner := tasks.New(
		store,
		storagememory.NewTaskStore(system.New()),
		q,
		enricher,
		nil,
		system.New(),
		uuid.New(),
		zap.NewNop(),
		tasks.Config{Workers: 2},
	)
	ctx, cancel := context.WithCancel(context.Background())
	go runner.Run(ctx)
	t.Cleanup(cancel)

	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 2 * time.Second
	}
	srv := httptest.NewServer(NewServer(store, runner, zap.NewNop(), cfg).Handler())
	t.Cleanup(srv.Close)
	return &apiFixture{server: srv, store: store, enricher: enricher}
}

func (fx *apiFixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, fx.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, body := fx.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestCreateCourseReturnsCreatedCourse(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, body := fx.do(t, http.MethodPost, "/courses", map[string]string{
		"link":        "https://example.com/go-basics",
		"course_name": "Go Basics",
		"provider":    "Udemy",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "https://example.com/go-basics", body["link"])
	require.Equal(t, "Go Basics", body["course_name"])
	require.Equal(t, catalog.Unknown, body["summary"], "missing fields default to the sentinel")
	require.EqualValues(t, 1, body["version"])
}

func TestCreateCourseValidation(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, body := fx.do(t, http.MethodPost, "/courses", map[string]string{"provider": "Udemy"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, body["detail"], "link and course_name")
}

func TestCreateCourseDuplicateConflict(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	payload := map[string]string{"link": "https://example.com/dup", "course_name": "Dup"}
	resp, _ := fx.do(t, http.MethodPost, "/courses", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := fx.do(t, http.MethodPost, "/courses", payload)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Contains(t, body["detail"], "already exists")
}

func TestUpdateCourseVersionFlow(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, _ := fx.do(t, http.MethodPost, "/courses", map[string]string{
		"link":        "https://example.com/u",
		"course_name": "Before",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	link := "https://example.com/u"
	resp, body := fx.do(t, http.MethodPut, "/courses/x?link="+urlQueryEscape(link), map[string]any{
		"version":     1,
		"course_name": "After",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "After", body["course_name"])
	require.EqualValues(t, 2, body["version"])

	// Stale version is rejected and the stored record is untouched.
	resp, body = fx.do(t, http.MethodPut, "/courses/x?link="+urlQueryEscape(link), map[string]any{
		"version":     1,
		"course_name": "Stale",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Contains(t, body["detail"], "version conflict")

	course, err := fx.store.Get(context.Background(), link)
	require.NoError(t, err)
	require.Equal(t, "After", course.CourseName)
	require.Equal(t, 2, course.Version)
}

func TestUpdateCourseNotFound(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, _ := fx.do(t, http.MethodPut, "/courses/x?link=https://example.com/missing", map[string]any{
		"version":     1,
		"course_name": "X",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateCourseRequiresFields(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, body := fx.do(t, http.MethodPut, "/courses/x?link=https://example.com/u", map[string]any{
		"version": 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, body["detail"], "no fields to update")

	resp, _ = fx.do(t, http.MethodPut, "/courses/x?link=https://example.com/u", map[string]any{
		"course_name": "X",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEnrichCourseUpserts(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, body := fx.do(t, http.MethodPost, "/courses/enrich", map[string]string{
		"link":       "https://example.com/new",
		"courseName": "Hinted Name",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Hinted Name", body["course_name"])
	require.Equal(t, "Coursera", body["provider"])

	course, err := fx.store.Get(context.Background(), "https://example.com/new")
	require.NoError(t, err)
	require.Equal(t, 1, course.Version)
}

func TestEnrichCourseUpstreamFailure(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	fx.enricher.mu.Lock()
	fx.enricher.err = fmt.Errorf("%w: status 503", catalog.ErrUpstream)
	fx.enricher.mu.Unlock()

	resp, body := fx.do(t, http.MethodPost, "/courses/enrich", map[string]string{
		"link": "https://example.com/bad",
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, body["detail"], "upstream unavailable")
}

func TestTaskFailureStatusIgnoresMessageWording(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	fx.enricher.mu.Lock()
	// The upstream body quotes another failure's phrasing; the mapped
	// status must follow the error's kind, not its text.
	fx.enricher.err = fmt.Errorf("%w: model said %q", catalog.ErrUpstream, "invalid input")
	fx.enricher.mu.Unlock()

	resp, body := fx.do(t, http.MethodPost, "/courses/enrich", map[string]string{
		"link": "https://example.com/wordy",
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, body["detail"], "invalid input")
}

func TestSlowTaskAnswersAcceptedAndIsPollable(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{WaitTimeout: 50 * time.Millisecond})
	block := make(chan struct{})
	fx.enricher.mu.Lock()
	fx.enricher.block = block
	fx.enricher.mu.Unlock()

	resp, body := fx.do(t, http.MethodPost, "/courses/enrich", map[string]string{
		"link": "https://example.com/slow",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	taskID, _ := body["id"].(string)
	require.NotEmpty(t, taskID)
	require.NotEqual(t, string(catalog.TaskStatusSucceeded), body["status"])

	close(block)
	require.Eventually(t, func() bool {
		resp, body := fx.do(t, http.MethodGet, "/tasks/"+taskID, nil)
		return resp.StatusCode == http.StatusOK &&
			body["status"] == string(catalog.TaskStatusSucceeded)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, _ := fx.do(t, http.MethodGet, "/tasks/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListCoursesSearchFilterPaginate(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	for i, c := range []map[string]string{
		{"link": "https://example.com/a", "course_name": "Alpha Go", "provider": "Coursera", "track": "Engineering"},
		{"link": "https://example.com/b", "course_name": "Beta Rust", "provider": "Udemy", "track": "Engineering"},
		{"link": "https://example.com/c", "course_name": "Gamma Go", "provider": "Coursera", "track": "Data"},
	} {
		resp, _ := fx.do(t, http.MethodPost, "/courses", c)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "course %d", i)
	}

	resp, body := fx.do(t, http.MethodGet, "/courses?search=go", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, body["total"])

	resp, body = fx.do(t, http.MethodGet, "/courses?provider=Coursera&track=Data", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["total"])

	resp, body = fx.do(t, http.MethodGet, "/courses?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, body["pageSize"])
	require.EqualValues(t, 2, body["totalPages"])
	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)

	filters, ok := body["availableFilters"].(map[string]any)
	require.True(t, ok)
	providers, ok := filters["provider"].([]any)
	require.True(t, ok)
	require.Len(t, providers, 2)
}

func TestListCoursesRejectsBadPaging(t *testing.T) {
	t.Parallel()

	fx := newAPIFixture(t, Config{})
	resp, _ := fx.do(t, http.MethodGet, "/courses?page=abc", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func urlQueryEscape(s string) string {
	return url.QueryEscape(s)
}
