package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/analysis"
	"github.com/Pinaire1/jujitsu-app/internal/database"
	"github.com/Pinaire1/jujitsu-app/internal/models"
	"github.com/Pinaire1/jujitsu-app/internal/resource"
	"github.com/Pinaire1/jujitsu-app/internal/services"
)

const anonymousUser = "anonymous"

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Report, error)
}

// Resolver materializes video references. ResolveRemote is used for
// references sent by clients and never reads the server's filesystem.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*resource.Local, error)
	ResolveRemote(ctx context.Context, ref string) (*resource.Local, error)
}

// FocusCoach answers a student's focus question next to rule findings.
type FocusCoach interface {
	FocusFeedback(ctx context.Context, focus, video string) (models.CoachingEvent, error)
}

type AnalysisStore interface {
	Save(ctx context.Context, rec *models.AnalysisRecord) error
	Get(ctx context.Context, userID, videoID string) (*models.AnalysisRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.AnalysisRecord, error)
	Ping(ctx context.Context) error
}

type PoseHealth interface {
	HealthCheck(ctx context.Context) bool
}

// Options wires the API. Store, Pose, Coach and Hub are optional.
type Options struct {
	Analyzer       Analyzer
	Resolver       Resolver
	Coach          FocusCoach
	Store          AnalysisStore
	Pose           PoseHealth
	Hub            *Hub
	Metrics        *services.Metrics
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
	TempDir        string
	MaxUploadBytes int64
	CORSOrigins    []string
	GeneratorReady bool
	Version        string
}

// service is the analysis path shared by the HTTP and gRPC front ends.
type service struct {
	analyzer Analyzer
	resolver Resolver
	coach    FocusCoach
	store    AnalysisStore
	pose     PoseHealth
	metrics  *services.Metrics
	logger   *zap.Logger
}

func newService(opts Options, logger *zap.Logger) *service {
	return &service{
		analyzer: opts.Analyzer,
		resolver: opts.Resolver,
		coach:    opts.Coach,
		store:    opts.Store,
		pose:     opts.Pose,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

type job struct {
	id      string
	userID  string
	videoID string
	ref     string
	// remote refs come from clients and are never read from local disk.
	remote  bool
	focus   string
	fps     float64
	onEvent func(models.CoachingEvent)
}

func (s *service) resolve(ctx context.Context, j job) (*resource.Local, error) {
	if j.remote {
		return s.resolver.ResolveRemote(ctx, j.ref)
	}
	return s.resolver.Resolve(ctx, j.ref)
}

// process resolves the video, analyses it and stores the result. When the
// rules found something and the student asked about a focus, a generated
// answer to that question is appended. A failed save is logged and counted
// but does not fail the analysis.
func (s *service) process(ctx context.Context, j job) (*models.AnalyzeResponse, error) {
	local, err := s.resolve(ctx, j)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := local.Close(); err != nil {
			s.logger.Warn("failed to remove downloaded video", zap.String("path", local.Path), zap.Error(err))
		}
	}()

	report, err := s.analyzer.Analyze(ctx, analysis.Request{
		ID:            j.id,
		VideoPath:     local.Path,
		FrameRateHint: j.fps,
		Focus:         j.focus,
		OnEvent:       j.onEvent,
	})
	if err != nil {
		return nil, err
	}

	insights := report.Feedback
	if j.focus != "" && report.Source == models.SourceRules && s.coach != nil {
		video := ""
		if j.remote {
			video = resource.Redact(j.ref)
		}
		ev, err := s.coach.FocusFeedback(ctx, j.focus, video)
		if err != nil {
			return nil, err
		}
		insights = append(append(models.FeedbackList(nil), report.Feedback...), ev)
	}

	analysisID := report.ID
	if s.store != nil {
		rec := &models.AnalysisRecord{
			ID:             report.ID,
			UserID:         j.userID,
			VideoID:        j.videoID,
			VideoPath:      resource.Redact(j.ref),
			VideoDigest:    local.Digest,
			Source:         report.Source,
			FallbackReason: report.FallbackReason,
			Partial:        report.Partial,
			Insights:       insights,
		}
		if err := s.store.Save(ctx, rec); err != nil {
			s.logger.Warn("failed to save analysis",
				zap.String("analysis_id", report.ID),
				zap.String("user_id", j.userID),
				zap.String("video_id", j.videoID),
				zap.Error(err),
			)
			if s.metrics != nil {
				s.metrics.IncrementPersistFailures()
			}
		} else {
			analysisID = rec.ID
		}
	}

	return &models.AnalyzeResponse{
		VideoID:        j.videoID,
		AnalysisID:     analysisID,
		Source:         report.Source,
		FallbackReason: report.FallbackReason,
		Partial:        report.Partial,
		FrameRate:      report.FrameRate,
		Insights:       insights,
	}, nil
}

type Handler struct {
	svc            *service
	hub            *Hub
	gatherer       prometheus.Gatherer
	logger         *zap.Logger
	tempDir        string
	maxUploadBytes int64
	origins        []string
	generatorReady bool
	version        string
	started        time.Time

	// ctx scopes background analyses started by uploads.
	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup
}

func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TempDir == "" {
		opts.TempDir = "temp_videos"
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	logger := opts.Logger.With(zap.String("component", "http"))
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		svc:            newService(opts, logger),
		hub:            opts.Hub,
		gatherer:       opts.Gatherer,
		logger:         logger,
		tempDir:        opts.TempDir,
		maxUploadBytes: opts.MaxUploadBytes,
		origins:        opts.CORSOrigins,
		generatorReady: opts.GeneratorReady,
		version:        opts.Version,
		started:        time.Now(),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Close cancels background analyses and waits for them to stop.
func (h *Handler) Close() {
	h.cancel()
	h.jobs.Wait()
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", h.handleAnalyze)
	mux.HandleFunc("POST /api/upload-video", h.handleUpload)
	mux.HandleFunc("GET /api/users/{userID}/analyses", h.handleListAnalyses)
	mux.HandleFunc("GET /api/users/{userID}/videos/{videoID}/analysis", h.handleGetAnalysis)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	if h.hub != nil {
		mux.HandleFunc("GET /ws", h.hub.ServeWS)
	}
	return h.withMetrics(h.withCORS(mux))
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

func validUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	remote := true

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		saved, err := h.saveUpload(w, r, "video", anonymousUser, false)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		defer os.Remove(saved.path)

		remote = false
		req = models.AnalyzeRequest{
			VideoURL:       saved.path,
			UserID:         anonymousUser,
			VideoID:        saved.videoID,
			AnalysisPrompt: r.FormValue("analysis_prompt"),

			TimestampFormat: r.FormValue("timestamp_format"),
		}
		if v := r.FormValue("frame_rate"); v != "" {
			fps, err := strconv.ParseFloat(v, 64)
			if err != nil || fps < 0 {
				h.writeError(w, http.StatusBadRequest, "invalid_request", "frame_rate must be a positive number")
				return
			}
			req.FrameRate = fps
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
			return
		}
		if strings.TrimSpace(req.VideoURL) == "" {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "video_url is required")
			return
		}
		if req.FrameRate < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "frame_rate must be a positive number")
			return
		}
	}

	if req.UserID == "" {
		req.UserID = anonymousUser
	}
	if !validUserID(req.UserID) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid user_id")
		return
	}
	if req.VideoID == "" {
		req.VideoID = uuid.NewString()
	}
	switch req.TimestampFormat {
	case "", models.FormatSeconds, models.FormatClock:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", `timestamp_format must be "seconds" or "clock"`)
		return
	}

	resp, err := h.svc.process(r.Context(), job{
		userID:  req.UserID,
		videoID: req.VideoID,
		ref:     req.VideoURL,
		remote:  remote,
		focus:   req.AnalysisPrompt,
		fps:     req.FrameRate,
	})
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	if req.TimestampFormat == models.FormatClock {
		resp.Insights = resp.Insights.AsClock()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !validUserID(userID) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	saved, err := h.saveUpload(w, r, "file", userID, true)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	analysisID := uuid.NewString()
	j := job{
		id:      analysisID,
		userID:  userID,
		videoID: saved.videoID,
		ref:     saved.path,
		focus:   r.FormValue("analysis_prompt"),
	}
	if h.hub != nil {
		j.onEvent = func(ev models.CoachingEvent) {
			h.hub.Publish(analysisID, Message{Type: MessageEvent, Payload: ev})
		}
	}

	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		h.runBackground(j)
	}()

	h.logger.Info("video uploaded",
		zap.String("user_id", userID),
		zap.String("filename", saved.filename),
		zap.String("analysis_id", analysisID),
	)
	h.writeJSON(w, http.StatusAccepted, models.UploadResponse{
		Status:     "processing",
		Message:    "Video uploaded, analysis started",
		Filename:   saved.filename,
		AnalysisID: analysisID,
	})
}

// runBackground analyses a saved upload and removes it afterwards, whatever
// the outcome.
func (h *Handler) runBackground(j job) {
	defer func() {
		if err := os.Remove(j.ref); err != nil && !os.IsNotExist(err) {
			h.logger.Warn("failed to remove upload", zap.String("path", j.ref), zap.Error(err))
		}
	}()

	resp, err := h.svc.process(h.ctx, j)
	if h.hub == nil {
		return
	}
	if err != nil {
		_, code := statusFor(err)
		h.hub.Publish(j.id, Message{Type: MessageFailed, Payload: models.ErrorResponse{
			Error:     err.Error(),
			Code:      code,
			Timestamp: time.Now().Unix(),
		}})
		return
	}
	h.hub.Publish(j.id, Message{Type: MessageComplete, Payload: resp})
}

type savedUpload struct {
	path     string
	filename string
	videoID  string
}

// saveUpload stores the multipart field as <user>_<uuid><ext> in the temp
// directory.
func (h *Handler) saveUpload(w http.ResponseWriter, r *http.Request, field, userID string, requireVideo bool) (*savedUpload, error) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %q file", field)
	}
	defer file.Close()

	if requireVideo && !strings.HasPrefix(header.Header.Get("Content-Type"), "video/") {
		return nil, errors.New("file must be a video")
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".mp4"
	}
	videoID := uuid.NewString()
	filename := userID + "_" + videoID + ext

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(h.tempDir, filename)
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	_, err = io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("save upload: %w", err)
	}
	return &savedUpload{path: path, filename: filename, videoID: videoID}, nil
}

func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if h.svc.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "persistence_disabled", "analysis history is not available")
		return
	}
	userID := r.PathValue("userID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := h.svc.store.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("list analyses failed", zap.String("user_id", userID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	if recs == nil {
		recs = []*models.AnalysisRecord{}
	}
	h.writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.svc.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "persistence_disabled", "analysis history is not available")
		return
	}
	userID, videoID := r.PathValue("userID"), r.PathValue("videoID")

	rec, err := h.svc.store.Get(r.Context(), userID, videoID)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Analysis not found")
		return
	}
	if err != nil {
		h.logger.Error("get analysis failed", zap.String("user_id", userID), zap.String("video_id", videoID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	st := models.HealthStatus{
		Status:    "healthy",
		Generator: h.generatorReady,
		Uptime:    time.Since(h.started).Round(time.Second),
		Version:   h.version,
	}
	if h.svc.pose != nil {
		st.PoseService = h.svc.pose.HealthCheck(ctx)
	}
	if !st.PoseService {
		st.Status = "degraded"
	}
	if h.svc.store != nil {
		st.Database = h.svc.store.Ping(ctx) == nil
		if !st.Database {
			st.Status = "degraded"
		}
	}
	if h.hub != nil {
		st.ActiveClients = h.hub.Count()
	}
	h.writeJSON(w, http.StatusOK, st)
}

// statusFor maps a pipeline error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch kind := models.KindOf(err); kind {
	case models.KindResourceUnavailable:
		return http.StatusBadRequest, string(kind)
	case models.KindDecode:
		return http.StatusUnprocessableEntity, string(kind)
	case models.KindFeedbackGeneration:
		return http.StatusBadGateway, string(kind)
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *Handler) writeAnalysisError(w http.ResponseWriter, err error) {
	code, kind := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("analysis failed", zap.Error(err))
		msg = "Internal server error"
	}
	h.writeError(w, code, kind, msg)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string) {
	h.writeJSON(w, status, models.ErrorResponse{Error: msg, Code: code, Timestamp: time.Now().Unix()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("write response failed", zap.Error(err))
	}
}

// originAllowed matches exact origins and patterns with one "*" such as
// https://*.vercel.app.
func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
		prefix, suffix, ok := strings.Cut(a, "*")
		if ok && len(origin) > len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// CheckOrigin is a websocket origin check using the same rules as CORS.
// Requests without an Origin header are not from a browser and pass.
func CheckOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || originAllowed(origin, allowed)
	}
}

func (h *Handler) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, h.origins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade reach the underlying connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (h *Handler) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		if h.svc.metrics != nil {
			h.svc.metrics.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
		}
	})
}
