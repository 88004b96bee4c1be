package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/idempotency"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyMiddleware replays the first completed response for a repeated
// Idempotency-Key from the same user. Requests without the header pass
// through. Store failures fail open.
func IdempotencyMiddleware(store idempotency.Store, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := actorFrom(r).UserID.String() + ":" + clientKey
			hash := requestHash(r, body)
			ctx := r.Context()

			rec, claimed, err := store.Begin(ctx, key, hash)
			if err != nil {
				log.Warn("idempotency store unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				switch {
				case rec.RequestHash != hash:
					writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", "idempotency key already used with a different request")
				case rec.Status == idempotency.StatusProcessing:
					writeError(w, http.StatusConflict, "request_in_progress", "a request with this idempotency key is still being processed")
				default:
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Idempotent-Replayed", "true")
					w.WriteHeader(rec.ResponseCode)
					_, _ = w.Write(rec.ResponseBody)
				}
				return
			}

			rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Server errors are not replayed so the client can retry.
			if rw.status >= http.StatusInternalServerError {
				if err := store.Abort(ctx, key); err != nil {
					log.Warn("abort idempotency key", zap.Error(err))
				}
				return
			}
			if err := store.Complete(ctx, key, rw.status, rw.body.Bytes()); err != nil {
				log.Warn("store idempotent response", zap.Error(err))
			}
		})
	}
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte(r.URL.Path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
