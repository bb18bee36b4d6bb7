package middleware

import (
	"net/http"
	"strings"

	"github.com/zhouzirui/z-coach/internal/model/coach"
)

// exposedHeaders 必须对浏览器可见，否则 widget 读不到回复文本和会话号。
var exposedHeaders = strings.Join([]string{coach.HeaderCoachText, coach.HeaderSessionID}, ", ")

// CORS 允许任意来源访问 API，并放行预检请求。
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		h.Set("Access-Control-Expose-Headers", exposedHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
