package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"forge-endpointify/internal/config"
	"forge-endpointify/internal/ioformats"
	"forge-endpointify/internal/models"
	"forge-endpointify/internal/service"
	"forge-endpointify/internal/tools"
	"forge-endpointify/internal/urlnorm"
	"forge-endpointify/internal/workspace"
)

const maxBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type batchReq struct {
	URLs    []string       `json:"urls"`
	Options models.Options `json:"options"`
}

type generateReq struct {
	Selected []string `json:"selected_components"`
}

type api struct {
	svc    *service.Service
	tools  *tools.Handler
	cfg    config.ServerConfig
	logger *zap.Logger
}

func newAPI(svc *service.Service, cfg config.ServerConfig, logger *zap.Logger) *api {
	return &api{
		svc:    svc,
		tools:  tools.NewHandler(svc, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// routes builds the router. ctx bounds background middleware goroutines.
func (a *api) routes(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(a.logger))
	r.Use(RequestLogger(a.logger, a.svc.Metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.svc.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.svc.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if a.cfg.RateLimit > 0 {
			r.Use(RateLimiter(ctx, a.cfg.RateLimit, max(a.cfg.RateBurst, 1), a.logger))
		}
		r.Post("/endpointify", a.endpointify)
		r.Post("/endpointify/batch", a.batch)
		r.Post("/endpointify/upload", a.upload)
		r.Get("/jobs/{id}", a.job)
		r.Post("/jobs/{id}/generate", a.generate)
		r.Get("/status", a.status)

		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "forge-endpointify", Version: version}, nil)
		tools.Register(mcpSrv, a.tools)
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	})
	return r
}

// POST /endpointify  {"url": "https://...", "options": {...}}
func (a *api) endpointify(w http.ResponseWriter, r *http.Request) {
	var in tools.EndpointifyInput
	if !decodeBody(w, r, &in) {
		return
	}
	out, err := a.tools.Endpointify(r.Context(), in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /endpointify/batch  {"urls": ["https://...", "..."], "options": {...}}
func (a *api) batch(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "urls must not be empty"})
		return
	}
	if a.cfg.MaxBatch > 0 && len(req.URLs) > a.cfg.MaxBatch {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "too many urls"})
		return
	}
	reqs := make([]models.ExtractRequest, len(req.URLs))
	for i, u := range req.URLs {
		reqs[i] = models.ExtractRequest{URL: u, Options: req.Options}
	}
	writeJSON(w, http.StatusOK, a.svc.Batch(r.Context(), reqs, a.cfg.BatchConcurrency))
}

// POST /endpointify/upload (multipart file=...) -> NDJSON
func (a *api) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "multipart parse error"})
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "file part 'file' required"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "read upload"})
		return
	}
	reqs, err := ioformats.Parse(data, ioformats.FormatFor(hdr.Filename))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if a.cfg.MaxBatch > 0 && len(reqs) > a.cfg.MaxBatch {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "too many urls"})
		return
	}

	items := a.svc.Batch(r.Context(), reqs, a.cfg.BatchConcurrency)
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := ioformats.WriteNDJSON(w, items); err != nil {
		a.logger.Warn("write ndjson", zap.Error(err))
	}
}

// GET /jobs/{id}
func (a *api) job(w http.ResponseWriter, r *http.Request) {
	job, err := a.svc.Store.Job(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// POST /jobs/{id}/generate  {"selected_components": ["..."]}
func (a *api) generate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := a.tools.Generate(r.Context(), tools.GenerateInput{
		JobID:    chi.URLParam(r, "id"),
		Selected: req.Selected,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /status?scope=all|apps|activity|jobs
func (a *api) status(w http.ResponseWriter, r *http.Request) {
	out, err := a.tools.Status(r.Context(), tools.StatusInput{Scope: r.URL.Query().Get("scope")})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, urlnorm.ErrInvalidURL),
		errors.Is(err, tools.ErrInvalidArguments),
		errors.Is(err, workspace.ErrNoSelection):
		code = http.StatusBadRequest
	case errors.Is(err, workspace.ErrUnknownJob):
		code = http.StatusNotFound
	default:
		a.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
