package api

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(60, 2) // 1 token/sec, burst of 2

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(200) })

	do := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do(); code != 200 {
		t.Fatalf("1st request = %d, want 200", code)
	}
	if code := do(); code != 200 {
		t.Fatalf("2nd request = %d, want 200", code)
	}
	if code := do(); code != 429 {
		t.Fatalf("3rd request (burst exhausted) = %d, want 429", code)
	}
}

func TestRateLimiterTracksIPsIndependently(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(60, 1)

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(200) })

	req1 := httptest.NewRequest("GET", "/x", nil)
	req1.RemoteAddr = "10.0.0.1:1"
	req2 := httptest.NewRequest("GET", "/x", nil)
	req2.RemoteAddr = "10.0.0.2:1"

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, req1)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)

	if w1.Code != 200 || w2.Code != 200 {
		t.Fatalf("distinct IPs should each get their own bucket, got %d and %d", w1.Code, w2.Code)
	}
}
