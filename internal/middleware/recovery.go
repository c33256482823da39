package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"hunyuan-gateway/pkg/logging/logging"
)

const panicBody = `{"error":"Internal Server Error","message":"unexpected server error"}`

//recover from panic , log 500

func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logging.L(r.Context()).Error("panic recovered",
					zap.Any("error", rec),
					zap.ByteString("stack", debug.Stack()),
				)

				// an event stream may already be committed; the status is best effort
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(panicBody))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
