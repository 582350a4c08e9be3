package rpcServer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tesola/staking-sync/internal/metrics/metricsTypes"
	"github.com/tesola/staking-sync/pkg/metadata"
	"github.com/tesola/staking-sync/pkg/security"
	"github.com/tesola/staking-sync/pkg/storage"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type requestIdKey struct{}

func withRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIdKey{}, id)))
	})
}

func requestId(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey{}).(string)
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

func (s *RpcServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		_ = s.metricsSink.Incr(metricsTypes.Metric_Incr_HttpRequest, []metricsTypes.MetricsLabel{
			{Name: "path", Value: r.URL.Path},
			{Name: "status", Value: strconv.Itoa(rec.status)},
		}, 1)
		_ = s.metricsSink.Timing(metricsTypes.Metric_Timing_HttpDuration, time.Since(started), []metricsTypes.MetricsLabel{
			{Name: "path", Value: r.URL.Path},
		})
		s.Logger.Sugar().Debugw("Handled request",
			zap.String("requestId", requestId(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
		)
	})
}

// writeJSON flattens payload into the top-level object next to success and message. A payload
// that cannot be encoded turns the response into a 500.
func writeJSON(w http.ResponseWriter, status int, success bool, message string, payload interface{}) {
	body := map[string]interface{}{}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			status = http.StatusInternalServerError
			success = false
			message = "failed to encode response"
		} else {
			var fields map[string]interface{}
			if json.Unmarshal(encoded, &fields) == nil && fields != nil {
				body = fields
			} else {
				body["data"] = json.RawMessage(encoded)
			}
		}
	}
	body["success"] = success
	body["message"] = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSONBody treats an empty body as an empty object.
func decodeJSONBody(r *http.Request, dst interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &security.ValidationError{Field: "body", Reason: "could not be read"}
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &security.ValidationError{Field: "body", Reason: "is not valid JSON"}
	}
	return nil
}

func statusForError(err error) int {
	switch {
	case security.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, security.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrRowNotFound):
		return http.StatusNotFound
	case errors.Is(err, metadata.ErrRowPending):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *RpcServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusUnauthorized {
		message = "Unauthorized"
	}
	if status == http.StatusInternalServerError {
		s.Logger.Sugar().Errorw("Request failed",
			zap.String("requestId", requestId(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, false, message, nil)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeJSON(w, http.StatusMethodNotAllowed, false, "Method not allowed", nil)
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOrDefault(v *int, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	return *v
}
