package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reviewdash/api/internal/logging"
	"reviewdash/api/internal/merge"
	"reviewdash/api/internal/search"
	"reviewdash/api/internal/syncer"
)

// staleWhileRevalidate is how long clients may keep showing sheet data while
// they revalidate it in the background.
const staleWhileRevalidate = 60

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logging.OrNop(logger)}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	read := r.Method == http.MethodGet || r.Method == http.MethodHead

	if read && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if read && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ok, checks := s.service.Ready(ctx)
		status := "ready"
		statusCode := http.StatusOK
		if !ok {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ok,
			"status": status,
			"checks": checks,
		})
		return
	}

	if read && r.URL.Path == "/api/sheet-data" {
		s.handleSheetData(w, r)
		return
	}

	if r.URL.Path == "/api/sync" {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Use POST to start a sync", nil)
			return
		}
		// A client hanging up must not abort a sync halfway through its writes.
		report, err := s.service.Sync(context.WithoutCancel(r.Context()), syncer.TriggerManual)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     report.Success,
			"lastUpdated": report.LastUpdated,
			"stats":       report.Stats,
			"rows":        report.Rows,
			"runId":       report.RunID,
		})
		return
	}

	if read && r.URL.Path == "/api/sync/status" {
		writeJSON(w, http.StatusOK, s.service.SyncStatus())
		return
	}

	if read && r.URL.Path == "/api/sync/history" {
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
			return
		}
		runs, err := s.service.SyncHistory(r.Context(), limit)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		return
	}

	if read && r.URL.Path == "/api/metrics" {
		summary, result, err := s.service.Metrics()
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics":     summary,
			"lastUpdated": result.LastUpdated,
			"etag":        result.ETag,
		})
		return
	}

	if read && r.URL.Path == "/api/reviews/search" {
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
			return
		}
		offset, err := queryInt(r, "offset")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
			return
		}
		resp, err := s.service.Search(search.Query{
			Text:   strings.TrimSpace(r.URL.Query().Get("q")),
			Source: strings.TrimSpace(r.URL.Query().Get("source")),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

// handleSheetData never fails: a degraded result is still a 200, just one
// that must not be cached.
func (s *HTTPServer) handleSheetData(w http.ResponseWriter, r *http.Request) {
	result := s.service.SheetData()

	if result.Degraded() {
		s.logger.Warn("serving degraded sheet data",
			zap.String("requestId", requestIDFrom(r.Context())),
			zap.String("error", result.Error),
		)
		writeJSON(w, http.StatusOK, sheetDataBody(result))
		return
	}

	etag := `"` + result.ETag + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
		int(s.service.CacheTTL().Seconds()), staleWhileRevalidate))

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.Header().Del("Content-Type")
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, sheetDataBody(result))
}

func sheetDataBody(result *merge.Result) map[string]any {
	body := map[string]any{
		"csv":         result.CSV,
		"lastUpdated": result.LastUpdated,
		"stats":       result.Stats,
	}
	if result.Error != "" {
		body["error"] = result.Error
	}
	return body
}

// etagMatches implements If-None-Match with weak comparison.
func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("requestId", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("requestId", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("durationMs", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,HEAD,POST,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"error":   message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return value, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
