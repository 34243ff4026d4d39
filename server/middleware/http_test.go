package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/server/middleware"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRecovery(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"no panic", ok, http.StatusOK},
		{"panic", func(http.ResponseWriter, *http.Request) { panic("boom") }, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			middleware.Recovery(logger.Nop())(tc.handler).ServeHTTP(rr, httptest.NewRequest("GET", "/", http.NoBody))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if tc.want == http.StatusInternalServerError {
				var body map[string]string
				if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] != "Internal server error" {
					t.Fatalf("unexpected body %q (%v)", rr.Body.String(), err)
				}
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Run("generates", func(t *testing.T) {
		var seen string
		handler := middleware.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = r.Header.Get(middleware.RequestIDHeader)
			w.WriteHeader(http.StatusOK)
		}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", http.NoBody))
		if seen == "" || rr.Header().Get(middleware.RequestIDHeader) != seen {
			t.Errorf("request saw %q, response has %q", seen, rr.Header().Get(middleware.RequestIDHeader))
		}
	})
	t.Run("preserves", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", http.NoBody)
		req.Header.Set(middleware.RequestIDHeader, "custom-id-123")
		middleware.RequestID()(http.HandlerFunc(ok)).ServeHTTP(rr, req)
		if got := rr.Header().Get(middleware.RequestIDHeader); got != "custom-id-123" {
			t.Fatalf("expected custom-id-123, got %s", got)
		}
	})
}

func TestCORS(t *testing.T) {
	cfg := &middleware.CORSConfig{
		AllowedOrigins:   []string{"https://ui.example.com"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowCredentials: true,
	}
	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantCode   int
		wantOrigin string
	}{
		{"allowed", "GET", "https://ui.example.com", false, http.StatusOK, "https://ui.example.com"},
		{"disallowed", "GET", "https://evil.com", false, http.StatusOK, ""},
		{"preflight", "OPTIONS", "https://ui.example.com", true, http.StatusNoContent, "https://ui.example.com"},
		{"plain options passes through", "OPTIONS", "https://ui.example.com", false, http.StatusOK, "https://ui.example.com"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/api/v1/graph", http.NoBody)
			req.Header.Set("Origin", tc.origin)
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			middleware.CORS(cfg)(http.HandlerFunc(ok)).ServeHTTP(rr, req)
			if rr.Code != tc.wantCode {
				t.Errorf("status %d, want %d", rr.Code, tc.wantCode)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("allow-origin %q, want %q", got, tc.wantOrigin)
			}
			if tc.wantOrigin != "" && rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected credentials header")
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 10 << 20, false},
		{"1KB", 1024, false},
		{"10mb", 10 << 20, false},
		{"2048", 2048, false},
		{"1GB", 1 << 30, false},
		{"lots", 0, true},
		{"-1MB", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := middleware.ParseSize(tc.in)
			if (err != nil) != tc.wantErr || got != tc.want {
				t.Errorf("ParseSize(%q) = %d, %v", tc.in, got, err)
			}
		})
	}
}

func TestBodySizeLimitRejectsLargeBodies(t *testing.T) {
	handler := middleware.BodySizeLimit("1KB")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	for size, want := range map[int]int{100: http.StatusOK, 4096: http.StatusRequestEntityTooLarge} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", size))))
		if rr.Code != want {
			t.Errorf("body of %d bytes: status %d, want %d", size, rr.Code, want)
		}
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-before")
				next.ServeHTTP(w, r)
				order = append(order, name+"-after")
			})
		}
	}
	handler := middleware.Chain(mark("m1"), mark("m2"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	want := "m1-before,m2-before,handler,m2-after,m1-after"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("order %s, want %s", got, want)
	}
}

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

func TestRequestLoggerKeepsFlusher(t *testing.T) {
	fr := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler := middleware.RequestLogger(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}))
	handler.ServeHTTP(fr, httptest.NewRequest("GET", "/api/v1/events", http.NoBody))
	if !fr.flushed {
		t.Error("expected Flush to reach the underlying writer")
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := gin.New()
	r.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerMinute: 2,
		Now:               func() time.Time { return now },
	}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := func() int {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest("GET", "/x", http.NoBody))
		return rr.Code
	}
	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		if got := codes(); got != want {
			t.Fatalf("request %d: status %d, want %d", i, got, want)
		}
	}
	now = now.Add(61 * time.Second)
	if got := codes(); got != http.StatusOK {
		t.Errorf("after the window: status %d", got)
	}
}
