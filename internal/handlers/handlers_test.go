package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pinaire1/jujitsu-app/internal/analysis"
	"github.com/Pinaire1/jujitsu-app/internal/database"
	"github.com/Pinaire1/jujitsu-app/internal/models"
	"github.com/Pinaire1/jujitsu-app/internal/resource"
	"github.com/Pinaire1/jujitsu-app/internal/services"
)

type fakeAnalyzer struct {
	mu   sync.Mutex
	reqs []analysis.Request
	fn   func(ctx context.Context, req analysis.Request) (*analysis.Report, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Report, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeAnalyzer) last() analysis.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func ruleReport(_ context.Context, req analysis.Request) (*analysis.Report, error) {
	id := req.ID
	if id == "" {
		id = "analysis-1"
	}
	ev := models.CoachingEvent{Timestamp: models.Seconds(3), Tip: "Keep your hands higher to defend better.", Rule: "hand-too-low"}
	if req.OnEvent != nil {
		req.OnEvent(ev)
	}
	return &analysis.Report{
		ID:        id,
		Feedback:  models.FeedbackList{ev},
		Source:    models.SourceRules,
		FrameRate: 30,
	}, nil
}

func failWith(err error) func(context.Context, analysis.Request) (*analysis.Report, error) {
	return func(context.Context, analysis.Request) (*analysis.Report, error) { return nil, err }
}

type localResolver struct{}

func (localResolver) Resolve(_ context.Context, ref string) (*resource.Local, error) {
	return &resource.Local{Path: ref, Digest: "digest"}, nil
}

func (localResolver) ResolveRemote(_ context.Context, ref string) (*resource.Local, error) {
	return &resource.Local{Path: ref, Digest: "digest"}, nil
}

type fakeCoach struct {
	mu     sync.Mutex
	calls  []string
	videos []string
	err    error
}

func (c *fakeCoach) FocusFeedback(_ context.Context, focus, video string) (models.CoachingEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, focus)
	c.videos = append(c.videos, video)
	if c.err != nil {
		return models.CoachingEvent{}, c.err
	}
	return models.CoachingEvent{Timestamp: models.NotApplicable, Tip: "Focus on " + focus}, nil
}

func (c *fakeCoach) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type memStore struct {
	mu      sync.Mutex
	recs    map[string]*models.AnalysisRecord
	saveErr error
	pingErr error
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*models.AnalysisRecord)}
}

func (s *memStore) Save(_ context.Context, rec *models.AnalysisRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recs[rec.UserID+"/"+rec.VideoID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, userID, videoID string) (*models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[userID+"/"+videoID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) ListByUser(_ context.Context, userID string, _ int) ([]*models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AnalysisRecord
	for _, rec := range s.recs {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }

type poseUp bool

func (p poseUp) HealthCheck(context.Context) bool { return bool(p) }

func newTestHandler(t *testing.T, opts Options) (*Handler, http.Handler) {
	t.Helper()
	if opts.Resolver == nil {
		opts.Resolver = localResolver{}
	}
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	h := New(opts)
	t.Cleanup(h.Close)
	return h, h.Routes()
}

func postJSON(t *testing.T, srv http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAnalyzeJSON(t *testing.T) {
	store := newMemStore()
	fa := &fakeAnalyzer{fn: ruleReport}
	_, srv := newTestHandler(t, Options{Analyzer: fa, Store: store})

	rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{
		VideoURL:       "https://cdn.example.com/u1/roll.mp4?sig=secret",
		UserID:         "u1",
		VideoID:        "v1",
		AnalysisPrompt: "my guard",
		FrameRate:      25,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"video_id": "v1",
		"analysis_id": "analysis-1",
		"source": "rules",
		"frame_rate": 30,
		"insights": [{"timestamp": 3, "tip": "Keep your hands higher to defend better."}]
	}`, rec.Body.String())

	got := fa.last()
	assert.Equal(t, "my guard", got.Focus)
	assert.Equal(t, 25.0, got.FrameRateHint)

	saved, err := store.Get(context.Background(), "u1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/u1/roll.mp4", saved.VideoPath)
	assert.Equal(t, "digest", saved.VideoDigest)
	assert.Equal(t, models.SourceRules, saved.Source)
}

func TestAnalyzeBadRequests(t *testing.T) {
	_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}})

	tests := []struct {
		name string
		body any
	}{
		{name: "missing video", body: map[string]any{"user_id": "u1"}},
		{name: "bad user", body: map[string]any{"video_url": "x.mp4", "user_id": "../etc"}},
		{name: "negative fps", body: map[string]any{"video_url": "x.mp4", "frame_rate": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, srv, "/api/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantKind string
	}{
		{models.NewError(models.KindResourceUnavailable, "resolve", errors.New("404")), http.StatusBadRequest, "resource_unavailable"},
		{models.NewError(models.KindDecode, "decode", errors.New("moov atom not found")), http.StatusUnprocessableEntity, "decode_error"},
		{models.NewError(models.KindFeedbackGeneration, "coach", context.DeadlineExceeded), http.StatusBadGateway, "feedback_generation_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.wantKind, func(t *testing.T) {
			_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: failWith(tt.err)}})
			rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{VideoURL: "roll.mp4"})
			assert.Equal(t, tt.wantCode, rec.Code)

			var body models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body.Code)
			if tt.wantCode == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", body.Error)
			}
		})
	}
}

func TestAnalyzeMultipartCleansUp(t *testing.T) {
	dir := t.TempDir()
	var seenPath string
	fa := &fakeAnalyzer{fn: func(ctx context.Context, req analysis.Request) (*analysis.Report, error) {
		seenPath = req.VideoPath
		data, err := os.ReadFile(req.VideoPath)
		if err != nil || string(data) != "fake mp4" {
			return nil, errors.New("upload not readable")
		}
		return ruleReport(ctx, req)
	}}
	_, srv := newTestHandler(t, Options{Analyzer: fa, TempDir: dir})

	body, ct := multipartBody(t, "video", "roll.MOV", "application/octet-stream", []byte("fake mp4"))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, dir, filepath.Dir(seenPath))
	assert.True(t, strings.HasPrefix(filepath.Base(seenPath), "anonymous_"))
	assert.Equal(t, ".mov", filepath.Ext(seenPath))
	assert.NoFileExists(t, seenPath)
}

func TestUploadRejectsNonVideo(t *testing.T) {
	_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}})

	body, ct := multipartBody(t, "file", "notes.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-video?user_id=u1", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/upload-video", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRunsInBackground(t *testing.T) {
	dir := t.TempDir()
	store := newMemStore()
	done := make(chan analysis.Request, 1)
	fa := &fakeAnalyzer{fn: func(ctx context.Context, req analysis.Request) (*analysis.Report, error) {
		defer func() { done <- req }()
		if data, err := os.ReadFile(req.VideoPath); err != nil || string(data) != "fake mp4" {
			return nil, errors.New("upload not readable")
		}
		return ruleReport(ctx, req)
	}}
	_, srv := newTestHandler(t, Options{Analyzer: fa, Store: store, TempDir: dir})

	body, ct := multipartBody(t, "file", "roll.mp4", "video/mp4", []byte("fake mp4"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-video?user_id=u1", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp models.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processing", resp.Status)
	assert.True(t, strings.HasPrefix(resp.Filename, "u1_"))

	got := <-done
	assert.Equal(t, resp.AnalysisID, got.ID)
	assert.Equal(t, filepath.Join(dir, resp.Filename), got.VideoPath)

	videoID := strings.TrimSuffix(strings.TrimPrefix(resp.Filename, "u1_"), ".mp4")
	require.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), "u1", videoID)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func TestUploadRemovesFileWhateverTheOutcome(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, analysis.Request) (*analysis.Report, error)
	}{
		{"success", ruleReport},
		{"generation failure", failWith(models.NewError(models.KindFeedbackGeneration, "coach", errors.New("timeout")))},
		{"decode failure", failWith(models.NewError(models.KindDecode, "decode", errors.New("bad header")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			h, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: tt.fn}, TempDir: dir})

			body, ct := multipartBody(t, "file", "roll.mp4", "video/mp4", []byte("fake mp4"))
			req := httptest.NewRequest(http.MethodPost, "/api/upload-video?user_id=u1", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

			h.Close()
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestAnalyzeClockTimestamps(t *testing.T) {
	store := newMemStore()
	_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}, Store: store})

	rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{
		VideoURL:        "roll.mp4",
		UserID:          "u1",
		VideoID:         "v1",
		TimestampFormat: "clock",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"timestamp":"00:03"`)

	saved, err := store.Get(context.Background(), "u1", "v1")
	require.NoError(t, err)
	assert.Equal(t, models.TimestampSeconds, saved.Insights[0].Timestamp.Kind())

	rec = postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{VideoURL: "roll.mp4", TimestampFormat: "hours"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRejectsServerPaths(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.mp4")
	require.NoError(t, os.WriteFile(secret, []byte("server file"), 0o644))

	fa := &fakeAnalyzer{fn: ruleReport}
	store := newMemStore()
	_, srv := newTestHandler(t, Options{
		Analyzer: fa,
		Store:    store,
		Resolver: resource.NewResolver(resource.Options{TempDir: dir}),
	})

	for _, ref := range []string{"/etc/passwd", secret, "file://" + secret, "../secret.mp4"} {
		rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{VideoURL: ref, UserID: "u1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code, ref)
	}
	assert.Empty(t, fa.reqs)
	recs, err := store.ListByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAnalyzeFocusFeedback(t *testing.T) {
	generated := func(_ context.Context, req analysis.Request) (*analysis.Report, error) {
		return &analysis.Report{
			ID:             "analysis-2",
			Feedback:       models.FeedbackList{{Timestamp: models.NotApplicable, Tip: "Tip one"}},
			Source:         models.SourceGenerated,
			FallbackReason: models.FallbackNoFindings,
		}, nil
	}

	t.Run("appended after rule findings", func(t *testing.T) {
		coach := &fakeCoach{}
		store := newMemStore()
		_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}, Coach: coach, Store: store})

		rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{
			VideoURL:       "https://cdn.example.com/roll.mp4?sig=secret",
			UserID:         "u1",
			VideoID:        "v1",
			AnalysisPrompt: "guard retention",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp models.AnalyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Insights, 2)
		assert.Equal(t, models.Seconds(3), resp.Insights[0].Timestamp)
		assert.Equal(t, models.NotApplicable, resp.Insights[1].Timestamp)
		assert.Equal(t, "Focus on guard retention", resp.Insights[1].Tip)
		assert.Equal(t, []string{"https://cdn.example.com/roll.mp4"}, coach.videos)

		saved, err := store.Get(context.Background(), "u1", "v1")
		require.NoError(t, err)
		assert.Len(t, saved.Insights, 2)
	})

	t.Run("not asked without a focus", func(t *testing.T) {
		coach := &fakeCoach{}
		_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}, Coach: coach})

		rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{VideoURL: "roll.mp4"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, coach.count())
	})

	t.Run("generated fallback already used the focus", func(t *testing.T) {
		coach := &fakeCoach{}
		_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: generated}, Coach: coach})

		rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{VideoURL: "roll.mp4", AnalysisPrompt: "guard retention"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, coach.count())

		var resp models.AnalyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Insights, 1)
	})

	t.Run("generation failure fails the call", func(t *testing.T) {
		coach := &fakeCoach{err: models.NewError(models.KindFeedbackGeneration, "coach", errors.New("quota"))}
		_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}, Coach: coach})

		rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{VideoURL: "roll.mp4", AnalysisPrompt: "guard retention"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestAnalysisHistory(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), &models.AnalysisRecord{
		ID: "a1", UserID: "u1", VideoID: "v1", Source: models.SourceGenerated,
		Insights: models.FeedbackList{{Timestamp: models.NotApplicable, Tip: "Tip one"}},
	}))
	_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}, Store: store})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/api/users/u1/videos/v1/analysis")
	require.Equal(t, http.StatusOK, rec.Code)
	var one models.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "a1", one.ID)
	assert.Equal(t, models.NotApplicable, one.Insights[0].Timestamp)

	assert.Equal(t, http.StatusNotFound, get("/api/users/u1/videos/missing/analysis").Code)

	rec = get("/api/users/u1/analyses")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.AnalysisRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = get("/api/users/nobody/analyses")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistoryWithoutStore(t *testing.T) {
	_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/u1/analyses", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPersistFailureKeepsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := newMemStore()
	store.saveErr = errors.New("connection refused")
	_, srv := newTestHandler(t, Options{
		Analyzer: &fakeAnalyzer{fn: ruleReport},
		Store:    store,
		Metrics:  services.NewMetrics(reg),
		Gatherer: reg,
	})

	rec := postJSON(t, srv, "/api/analyze", models.AnalyzeRequest{VideoURL: "roll.mp4", UserID: "u1", VideoID: "v1"})
	require.Equal(t, http.StatusOK, rec.Code)

	expected := `
# HELP jujitsu_persistence_failures_total Analyses whose result could not be stored
# TYPE jujitsu_persistence_failures_total counter
jujitsu_persistence_failures_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "jujitsu_persistence_failures_total"))

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `jujitsu_http_requests_total{method="POST",path="POST /api/analyze",status="2xx"} 1`)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		pose   PoseHealth
		store  AnalysisStore
		status string
	}{
		{name: "all up", pose: poseUp(true), store: newMemStore(), status: "healthy"},
		{name: "no store", pose: poseUp(true), status: "healthy"},
		{name: "pose down", pose: poseUp(false), status: "degraded"},
		{name: "db down", pose: poseUp(true), store: &memStore{pingErr: errors.New("down")}, status: "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestHandler(t, Options{Analyzer: &fakeAnalyzer{fn: ruleReport}, Pose: tt.pose, Store: tt.store, Version: "test"})
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var st models.HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
			assert.Equal(t, tt.status, st.Status)
			assert.Equal(t, "test", st.Version)
		})
	}
}

func TestCORS(t *testing.T) {
	_, srv := newTestHandler(t, Options{
		Analyzer:    &fakeAnalyzer{fn: ruleReport},
		CORSOrigins: []string{"http://localhost:5173", "https://*.vercel.app"},
	})

	tests := []struct {
		origin string
		allow  bool
	}{
		{"http://localhost:5173", true},
		{"https://jujitsu-app-git-main.vercel.app", true},
		{"https://.vercel.app", false},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code, tt.origin)
		if tt.allow {
			assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), tt.origin)
		}
	}
}
