// Package api serves boundary area, cell overlays and rasters over HTTP for web map clients.
package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/overlay"
	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/internal/resilience"
	"github.com/sells-group/fieldmap/internal/session"
	"github.com/sells-group/fieldmap/internal/zone"
	"github.com/sells-group/fieldmap/pkg/prediction"
)

const (
	maxBodyBytes = 8 << 20
	maxImageSide = 2048
)

// Settings are the defaults applied to every request.
type Settings struct {
	Params          prediction.Params
	CellSizeMeters  float64
	Render          raster.RenderOptions
	RendererOptions []overlay.RendererOption
	AllowedOrigins  []string
	RenderTimeout   time.Duration
}

// Server handles the HTTP API.
type Server struct {
	client   prediction.Client
	settings Settings
	images   *ImageCache
}

// NewServer returns a server predicting through client. images may be nil.
func NewServer(client prediction.Client, settings Settings, images *ImageCache) *Server {
	if settings.CellSizeMeters <= 0 {
		settings.CellSizeMeters = raster.DefaultCellSize
	}
	if settings.RenderTimeout <= 0 {
		settings.RenderTimeout = time.Minute
	}
	return &Server{client: client, settings: settings, images: images}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)

	origins := s.settings.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Cache"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/area", s.handleArea)
		r.Post("/overlay", s.handleOverlay)
		r.Post("/raster", s.handleRaster)
		r.Get("/cache/stats", s.handleCacheStats)
	})
	return r
}

// FieldRequest is the body of the /v1 endpoints. Boundary is a list of [lon, lat] pairs.
// When Samples is absent the prediction service is called.
type FieldRequest struct {
	Name     string             `json:"name,omitempty"`
	Boundary [][]float64        `json:"boundary"`
	Samples  *raster.SampleSet  `json:"samples,omitempty"`
	Params   *prediction.Params `json:"params,omitempty"`
	Width    int                `json:"width,omitempty"`
	Height   int                `json:"height,omitempty"`
}

// OverlayResponse is the body returned by /v1/overlay.
type OverlayResponse struct {
	Overlay *overlay.FeatureCollector `json:"overlay"`
	Lo      float64                   `json:"lo"`
	Hi      float64                   `json:"hi"`
	Stats   []zone.Stat               `json:"stats"`
	Warning string                    `json:"warning,omitempty"`
}

func (s *Server) handleArea(w http.ResponseWriter, r *http.Request) {
	req, ring, ok := s.decode(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, geo.NewFieldRecord(req.Name, ring.Close()))
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	req, ring, ok := s.decode(w, r)
	if !ok {
		return
	}
	fc := overlay.NewFeatureCollector()
	view, err := s.load(r.Context(), fc, req, ring)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer view.Close()

	z := view.Zoning()
	resp := OverlayResponse{Overlay: fc, Lo: z.Scale.Lo, Hi: z.Scale.Hi, Stats: z.Stats}
	if z.Warning != nil {
		resp.Warning = z.Warning.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRaster(w http.ResponseWriter, r *http.Request) {
	req, ring, ok := s.decode(w, r)
	if !ok {
		return
	}
	if req.Width < 0 || req.Height < 0 || req.Width > maxImageSide || req.Height > maxImageSide {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("width and height must be within [0, %d]", maxImageSide)))
		return
	}

	key := rasterKey(req)
	if s.images != nil {
		if data := s.images.Get(key); data != nil {
			writePNG(w, data, "hit")
			return
		}
	}

	view, err := s.load(r.Context(), overlay.NewFeatureCollector(), req, ring)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer view.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.settings.RenderTimeout)
	defer cancel()
	task, err := view.StartRender(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	canvas, err := task.Wait(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := canvas.EncodePNG(&buf); err != nil {
		writeError(w, r, err)
		return
	}
	if s.images != nil {
		s.images.Put(key, buf.Bytes())
	}
	writePNG(w, buf.Bytes(), "miss")
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	if s.images == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, s.images.Stats())
}

// decode parses the body and boundary, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request) (*FieldRequest, geo.Ring, bool) {
	var req FieldRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return nil, nil, false
	}
	ring, err := geo.RingFromLonLatPairs(req.Boundary)
	if err == nil {
		err = ring.Close().ValidateClosed()
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return nil, nil, false
	}
	return &req, ring, true
}

// load builds a view for the request and fills it with the supplied or predicted samples.
func (s *Server) load(ctx context.Context, surface overlay.MapSurface, req *FieldRequest, ring geo.Ring) (*session.View, error) {
	params := s.settings.Params
	if req.Params != nil {
		params = *req.Params
	}
	if err := params.WithDefaults().Validate(); err != nil {
		return nil, &badRequestError{err}
	}

	opts := s.settings.Render
	if req.Width > 0 {
		opts.Width = req.Width
	}
	if req.Height > 0 {
		opts.Height = req.Height
	}

	view := session.NewView(s.client, surface,
		session.WithParams(params),
		session.WithCellSize(s.settings.CellSizeMeters),
		session.WithRenderOptions(opts),
		session.WithRendererOptions(s.settings.RendererOptions...))
	if err := view.SetBoundary(ring); err != nil {
		return nil, &badRequestError{err}
	}

	var err error
	if req.Samples != nil {
		_, err = view.Apply(req.Samples)
		if err != nil {
			err = &badRequestError{err}
		}
	} else {
		_, err = view.Refresh(ctx)
	}
	if err != nil {
		view.Close()
		return nil, err
	}
	return view, nil
}

type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var bre *badRequestError
	var pfe *prediction.PredictionFailedError
	var mse *raster.MalformedSampleSetError
	switch {
	case errors.As(err, &bre):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &pfe), errors.As(err, &mse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	var pfe *prediction.PredictionFailedError
	if errors.As(err, &pfe) {
		msg = pfe.Detail
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("request_id", session.RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, errorBody(msg))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writePNG(w http.ResponseWriter, data []byte, cache string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Cache", cache)
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}

// rasterKey hashes the parts of the request that determine the image.
func rasterKey(req *FieldRequest) string {
	data, _ := json.Marshal(req)
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// requestID propagates X-Request-Id, generating one when absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := session.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))
		w.Header().Set("X-Request-Id", session.RequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("request_id", session.RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)))
	})
}
