package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMiddlewareLabelsRouteTemplate(t *testing.T) {
	Init()
	Init()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/sessions/:session_id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", Handler())

	before := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/sessions/:session_id", "200"))
	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/sessions/:session_id", "200")); got != before+2 {
		t.Errorf("route counter = %v, want %v", got, before+2)
	}
	if got := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "unmatched", "404")); got < 1 {
		t.Errorf("unmatched counter = %v", got)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "exstem_http_requests_total") {
		t.Error("/metrics does not expose the request counter")
	}
}
