package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ollama-tavern/internal/service/chat/chattest"
)

func TestHealth(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"up", nil, http.StatusOK},
		{"down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			New(&chattest.Transport{PingErr: tc.err}).RegisterRoutes(r)

			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
			if !strings.Contains(resp.Body.String(), `"backend":"scripted"`) {
				t.Fatalf("unexpected body %s", resp.Body.String())
			}
		})
	}
}
