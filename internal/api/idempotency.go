package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/VenkatGGG/idempotency-coordinator/internal/idempotency"
	"github.com/VenkatGGG/idempotency-coordinator/internal/logging"
	"github.com/VenkatGGG/idempotency-coordinator/pkg/httpx"
)

const (
	replayedHeader      = "Idempotent-Replayed"
	maxIdempotentBody   = 1 << 20
	conflictRetryAfterS = "1"
)

// Idempotent wraps next so that requests carrying the same key under
// opts.KeyPrefix run it at most once while the outcome is cached.
func (s *Server) Idempotent(opts idempotency.Options, next http.HandlerFunc) http.HandlerFunc {
	opts = opts.Normalized()
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if opts.IncludeBody && r.Body != nil {
			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httpx.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
					return
				}
				httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "request body could not be read")
				return
			}
			body = raw
			r.Body = io.NopCloser(bytes.NewReader(raw))
		}

		var header http.Header
		result, err := s.coordinator.Execute(r.Context(), r.Header.Get(opts.HeaderName), opts, idempotency.FingerprintBody(body),
			func(ctx context.Context) (idempotency.Result, error) {
				rec := httptest.NewRecorder()
				next(rec, r.WithContext(ctx))

				res := rec.Result()
				defer res.Body.Close()
				captured, err := io.ReadAll(res.Body)
				if err != nil {
					return idempotency.Result{}, err
				}
				header = res.Header
				return idempotency.Result{
					StatusCode:  res.StatusCode,
					ContentType: res.Header.Get("Content-Type"),
					Body:        bytes.Clone(captured),
				}, nil
			})
		if err != nil {
			s.writeIdempotencyError(w, r, opts, err)
			return
		}

		if result.Replayed {
			w.Header().Set(replayedHeader, "true")
			writeResult(w, nil, result)
			return
		}
		writeResult(w, header, result)
	}
}

func (s *Server) writeIdempotencyError(w http.ResponseWriter, r *http.Request, opts idempotency.Options, err error) {
	switch idempotency.KindOf(err) {
	case idempotency.KindKeyMissing:
		httpx.WriteError(w, http.StatusBadRequest, "idempotency_key_missing", err.Error())
	case idempotency.KindBodyMismatch:
		httpx.WriteError(w, http.StatusUnprocessableEntity, "idempotency_body_mismatch", err.Error())
	case idempotency.KindConflict:
		w.Header().Set("Retry-After", conflictRetryAfterS)
		httpx.WriteError(w, http.StatusConflict, "request_in_progress", "another request with this idempotency key is still in progress")
	default:
		logging.WithTrace(r.Context(), s.logger).Error("idempotent request failed",
			slog.String("prefix", opts.KeyPrefix), slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "idempotency_failed", "request could not be processed")
	}
}

func writeResult(w http.ResponseWriter, header http.Header, result idempotency.Result) {
	for key, values := range header {
		w.Header().Del(key)
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	if contentType := strings.TrimSpace(result.ContentType); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	status := result.StatusCode
	if status <= 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(result.Body)
}
