package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// Origins 描述允许访问 API 的浏览器来源。同源请求与不带 Origin 的请求总是放行。
type Origins struct {
	any     bool
	allowed map[string]struct{}
}

// NewOrigins builds the policy from a list such as "http://localhost:3000".
// A "*" entry allows every origin.
func NewOrigins(list []string) Origins {
	o := Origins{allowed: make(map[string]struct{}, len(list))}
	for _, item := range list {
		item = strings.TrimRight(strings.ToLower(strings.TrimSpace(item)), "/")
		switch item {
		case "":
		case "*":
			o.any = true
		default:
			o.allowed[item] = struct{}{}
		}
	}
	return o
}

// Allowed reports whether r may act on the API from its Origin.
func (o Origins) Allowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || o.any {
		return true
	}
	if _, ok := o.allowed[strings.TrimRight(strings.ToLower(origin), "/")]; ok {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// CORS 为允许的前端来源添加跨域响应头，并直接应答预检请求。
func CORS(origins Origins) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			allowed := origins.Allowed(r)
			switch {
			case origin == "":
				h.Set("Access-Control-Allow-Origin", "*")
			case allowed:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			default:
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				allowHeaders := r.Header.Get("Access-Control-Request-Headers")
				if allowHeaders == "" {
					allowHeaders = "Content-Type"
				}
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
