package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-cash-ledger/pkg/logging"
)

// statusResponseWriter 記下回應的狀態碼
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// AccessLogMiddleware 每個請求一筆日誌，5xx 用 Error，4xx 用 Warn
func AccessLogMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			srw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(srw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", routeTemplate(r)),
				zap.Int("status", srw.statusCode),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case srw.statusCode >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			case srw.statusCode >= http.StatusBadRequest:
				logger.Warn("http request", fields...)
			default:
				logger.Debug("http request", fields...)
			}
		})
	}
}

// routeTemplate 使用路由樣板 (/transactions/{id}) 而非實際路徑
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
