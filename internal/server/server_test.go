package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pagecap "github.com/porticus-lab/go-pagecap"
	"github.com/porticus-lab/go-pagecap/internal/orchestrator"
)

type fakeController struct {
	mu       sync.Mutex
	running  bool
	pages    int
	limit    int
	stopped  bool
	started  chan int
	release  chan struct{}
	genErr   error
	lastOpts *pagecap.GenerateOptions
}

func newFake() *fakeController {
	return &fakeController{limit: 50, started: make(chan int, 1), release: make(chan struct{})}
}

func (f *fakeController) Start(ctx context.Context, limit int) (<-chan pagecap.Outcome, error) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil, pagecap.ErrAlreadyRunning
	}
	f.running = true
	f.limit = limit
	f.mu.Unlock()
	f.started <- limit

	done := make(chan pagecap.Outcome, 1)
	go func() {
		select {
		case <-f.release:
		case <-ctx.Done():
		}

		f.mu.Lock()
		f.running = false
		f.pages = 2
		f.mu.Unlock()
		done <- pagecap.Outcome{State: orchestrator.Done, Reason: orchestrator.ReasonLimit, Captured: 2}
	}()
	return done, nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeController) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = 0
}

func (f *fakeController) Status() pagecap.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pagecap.Status{Running: f.running, Pages: f.pages, Limit: f.limit}
}

func (f *fakeController) Generate(_ context.Context, opts *pagecap.GenerateOptions) (*pagecap.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	if f.genErr != nil {
		return nil, f.genErr
	}
	if f.pages == 0 {
		return nil, pagecap.ErrEmptySession
	}
	return &pagecap.Document{Filename: "Atlas_p1-2.pdf", Pages: f.pages}, nil
}

func (f *fakeController) CaptureSingle(_ context.Context, opts *pagecap.GenerateOptions) (*pagecap.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &pagecap.Document{Filename: "Atlas_p4.pdf", Pages: 1}, nil
}

func newTestServer(t *testing.T, ctl Controller) *Server {
	t.Helper()
	s := New(ctl, Options{Limit: 25})
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	f := newFake()
	f.pages = 3
	s := newTestServer(t, f)

	rec := do(t, s, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "idle", got["state"])
	assert.Equal(t, float64(3), got["pages"])
	assert.Equal(t, false, got["running"])
}

func TestStartRunsInBackground(t *testing.T) {
	f := newFake()
	s := newTestServer(t, f)

	rec := do(t, s, http.MethodPost, "/session/start?limit=7", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 7, <-f.started)

	rec = do(t, s, http.MethodPost, "/session/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(f.release)
	s.Wait()

	rec = do(t, s, http.MethodGet, "/session", "")
	var got struct {
		Pages   int        `json:"pages"`
		LastRun *runResult `json:"last_run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Pages)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, "done", got.LastRun.State)
	assert.Equal(t, "page-limit", got.LastRun.Reason)
	assert.Equal(t, 2, got.LastRun.Captured)
}

func TestStartConcurrentRequests(t *testing.T) {
	f := newFake()
	s := newTestServer(t, f)

	codes := make(chan int, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- do(t, s, http.MethodPost, "/session/start", "").Code
		}()
	}
	wg.Wait()
	close(codes)

	accepted, conflicts := 0, 0
	for c := range codes {
		switch c {
		case http.StatusAccepted:
			accepted++
		case http.StatusConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 7, conflicts)
	assert.Equal(t, 25, <-f.started)
	close(f.release)
}

func TestStartLimitFromBodyAndDefault(t *testing.T) {
	f := newFake()
	s := newTestServer(t, f)

	rec := do(t, s, http.MethodPost, "/session/start", `{"limit": 12}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 12, <-f.started)
	f.release <- struct{}{}
	s.Wait()

	rec = do(t, s, http.MethodPost, "/session/start", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 25, <-f.started)
	close(f.release)
}

func TestStartRejectsBadLimit(t *testing.T) {
	s := newTestServer(t, newFake())
	for _, q := range []string{"0", "-3", "many"} {
		rec := do(t, s, http.MethodPost, "/session/start?limit="+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", q)
	}
}

func TestStopAndClear(t *testing.T) {
	f := newFake()
	f.pages = 4
	s := newTestServer(t, f)

	rec := do(t, s, http.MethodPost, "/session/stop", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, f.stopped)

	rec = do(t, s, http.MethodPost, "/session/clear", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.Status().Pages)
}

func TestDocument(t *testing.T) {
	f := newFake()
	f.pages = 2
	s := newTestServer(t, f)

	rec := do(t, s, http.MethodPost, "/session/document", `{"title": "Atlas", "keep": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Atlas_p1-2.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", rec.Header().Get("X-Page-Count"))
	require.NotNil(t, f.lastOpts)
	assert.Equal(t, "Atlas", f.lastOpts.Title)
	assert.True(t, f.lastOpts.Keep)
}

func TestDocumentErrors(t *testing.T) {
	f := newFake()
	s := newTestServer(t, f)

	rec := do(t, s, http.MethodPost, "/session/document", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.pages = 2
	f.genErr = fmt.Errorf("%w: disk full", pagecap.ErrAssembly)
	rec = do(t, s, http.MethodPost, "/session/document", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk full")

	rec = do(t, s, http.MethodPost, "/session/document", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCapturePage(t *testing.T) {
	f := newFake()
	s := newTestServer(t, f)

	rec := do(t, s, http.MethodPost, "/capture/page", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Page-Count"))

	f.genErr = fmt.Errorf("wrapped: %w", pagecap.ErrProbeFailed)
	rec = do(t, s, http.MethodPost, "/capture/page", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(pagecap.ErrCaptureTimeout))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(pagecap.ErrClosed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, newFake())
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/session/start", "").Code)
}
