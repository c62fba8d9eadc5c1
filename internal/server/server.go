// Package server provides the HTTP API for product status, report download and
// build triggering.
//
// Endpoints:
//
//	GET  /products                                   list products
//	GET  /products/{id}                              a single product
//	GET  /products/product-status                    status of every product
//	GET  /products/product-status/{productName}      status of one product
//	HEAD /products/reports?product-name=&group-by=   probe for a report
//	GET  /products/reports?product-name=&group-by=   download a report
//	POST /products/trigger-build                     start a Jenkins job
//	GET  /metrics                                    Prometheus metrics
//	GET  /healthz                                    liveness
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomasbasham/testgrid-gateway/internal/metrics"
	"github.com/tomasbasham/testgrid-gateway/internal/product"
	"github.com/tomasbasham/testgrid-gateway/internal/report"
	"github.com/tomasbasham/testgrid-gateway/internal/trigger"
)

// maxJobNameBytes bounds the trigger request body.
const maxJobNameBytes = 4 << 10

// Reports serves report probes and downloads.
type Reports interface {
	CheckExists(ctx context.Context, req report.Request) (bool, error)
	Fetch(ctx context.Context, req report.Request) (*report.Report, error)
}

// Builds starts Jenkins jobs.
type Builds interface {
	TriggerBuild(ctx context.Context, jobName string) trigger.Outcome
}

// Options holds the dependencies shared across HTTP handlers.
type Options struct {
	Products product.Repository
	Reports  Reports
	Builds   Builds

	// Metrics is optional; nil disables /metrics and instrumentation.
	Metrics *metrics.Collector

	// Logger is optional; nil discards output.
	Logger *slog.Logger
}

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	products product.Repository
	reports  Reports
	builds   Builds
	metrics  *metrics.Collector
	logger   *slog.Logger

	handler http.Handler
}

// New creates a Server wired to the given dependencies.
func New(opts Options) *Server {
	s := &Server{
		products: opts.Products,
		reports:  opts.Reports,
		builds:   opts.Builds,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", s.handleListProducts)
	mux.HandleFunc("GET /products/{id}", s.handleGetProduct)
	mux.HandleFunc("GET /products/product-status", s.handleListStatuses)
	mux.HandleFunc("GET /products/product-status/{productName}", s.handleGetStatus)
	mux.HandleFunc("HEAD /products/reports", s.handleCheckReport)
	mux.HandleFunc("GET /products/reports", s.handleFetchReport)
	mux.HandleFunc("POST /products/trigger-build", s.handleTriggerBuild)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.handler = s.withRequestLogging(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Timeouts bounds the phases of an HTTP exchange.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// ListenAndServe starts the HTTP server on addr and shuts it down gracefully
// when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, t Timeouts) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  t.Read,
		WriteTimeout: t.Write,
		IdleTimeout:  t.Idle,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.products.ListProducts(r.Context())
	if err != nil {
		s.internalError(w, r, "list products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.products.FindByID(r.Context(), id)
	if errors.Is(err, product.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("product %q not found", id))
		return
	}
	if err != nil {
		s.internalError(w, r, "find product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := product.Statuses(r.Context(), s.products)
	if err != nil {
		s.internalError(w, r, "list product statuses", err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("productName")
	p, err := s.products.FindByName(r.Context(), name)
	if errors.Is(err, product.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("product %q not found", name))
		return
	}
	if err != nil {
		s.internalError(w, r, "find product", err)
		return
	}
	status, err := product.StatusOf(r.Context(), s.products, *p)
	if err != nil {
		s.internalError(w, r, "product status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCheckReport(w http.ResponseWriter, r *http.Request) {
	req, err := parseReportRequest(r)
	if err != nil {
		s.recordLookup("check", metrics.ResultInvalid)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ok, err := s.reports.CheckExists(r.Context(), req)
	if err != nil {
		status, result := reportErrorStatus(err)
		s.recordLookup("check", result)
		if status == http.StatusInternalServerError {
			s.logger.Error("report check failed", "product", req.ProductName, "request_id", RequestID(r.Context()), "error", err)
		}
		w.WriteHeader(status)
		return
	}
	if !ok {
		s.recordLookup("check", metrics.ResultMissing)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.recordLookup("check", metrics.ResultFound)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFetchReport(w http.ResponseWriter, r *http.Request) {
	req, err := parseReportRequest(r)
	if err != nil {
		s.recordLookup("fetch", metrics.ResultInvalid)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := s.reports.Fetch(r.Context(), req)
	if err != nil {
		status, result := reportErrorStatus(err)
		s.recordLookup("fetch", result)
		if status == http.StatusInternalServerError {
			s.logger.Error("report fetch failed", "product", req.ProductName, "request_id", RequestID(r.Context()), "error", err)
			writeError(w, status, "failed to read report")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	defer rep.Body.Close()
	s.recordLookup("fetch", metrics.ResultFound)

	h := w.Header()
	h.Set("Content-Type", rep.ContentType)
	h.Set("Content-Disposition", rep.Disposition())
	if rep.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(rep.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if n, err := io.Copy(w, rep.Body); err != nil {
		// Headers are already sent; the client sees a truncated body.
		s.logger.Warn("report stream interrupted", "file", rep.Filename, "bytes", n, "request_id", RequestID(r.Context()), "error", err)
	}
}

// triggerResponse is the JSON body returned from POST /products/trigger-build.
type triggerResponse struct {
	Job     string `json:"job"`
	Outcome string `json:"outcome"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

func (s *Server) handleTriggerBuild(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJobNameBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body) > maxJobNameBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "job name too long")
		return
	}
	job := strings.TrimSpace(string(body))

	out := s.builds.TriggerBuild(r.Context(), job)
	if s.metrics != nil {
		s.metrics.RecordBuildTrigger(out.Kind.String())
	}

	resp := triggerResponse{Job: job, Outcome: out.Kind.String(), Code: out.Code}
	switch {
	case out.Kind == trigger.Triggered:
		resp.Message = "Successfully triggered the job"
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(out.Err, trigger.ErrInvalidJobName):
		resp.Message = out.Err.Error()
		writeJSON(w, http.StatusBadRequest, resp)
	case out.Kind == trigger.Rejected:
		resp.Message = fmt.Sprintf("Jenkins rejected the build request with status %d", out.Code)
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		s.logger.Error("build trigger failed", "job", job, "request_id", RequestID(r.Context()), "error", out.Err)
		resp.Message = "Error occurred while triggering the build"
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// parseReportRequest reads the report query parameters. The grouping axis is
// validated by the gateway.
func parseReportRequest(r *http.Request) (report.Request, error) {
	q := r.URL.Query()
	req := report.Request{
		ProductName: q.Get("product-name"),
		GroupBy:     q.Get("group-by"),
	}
	if req.ProductName == "" {
		return req, errors.New("product-name is required")
	}
	if v := q.Get("show-success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid show-success %q", v)
		}
		req.ShowSuccess = b
	}
	return req, nil
}

// reportErrorStatus maps a gateway error to an HTTP status and a metrics
// result label. Product and artifact absence both map to 404.
func reportErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, report.ErrInvalidAxis):
		return http.StatusBadRequest, metrics.ResultInvalid
	case errors.Is(err, report.ErrProductNotFound):
		return http.StatusNotFound, metrics.ResultProductAbsent
	case errors.Is(err, report.ErrArtifactNotFound):
		return http.StatusNotFound, metrics.ResultMissing
	default:
		return http.StatusInternalServerError, metrics.ResultError
	}
}

func (s *Server) recordLookup(operation, result string) {
	if s.metrics != nil {
		s.metrics.RecordReportLookup(operation, result)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.logger.Error(action+" failed", "request_id", RequestID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, action+" failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
