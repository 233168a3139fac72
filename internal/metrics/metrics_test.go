package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCallEnded_SplitsOutcome(t *testing.T) {
	before := testutil.ToFloat64(CallsEnded.WithLabelValues("PRIVATE", "missed"))
	RecordCallEnded("PRIVATE", true, 0)
	if got := testutil.ToFloat64(CallsEnded.WithLabelValues("PRIVATE", "missed")); got != before+1 {
		t.Fatalf("expected missed counter to grow by 1, got %v -> %v", before, got)
	}
}

func TestRecordSignalingMessage_DefaultsType(t *testing.T) {
	before := testutil.ToFloat64(SignalingMessages.WithLabelValues("unknown", "dropped"))
	RecordSignalingMessage("", "dropped")
	if got := testutil.ToFloat64(SignalingMessages.WithLabelValues("unknown", "dropped")); got != before+1 {
		t.Fatalf("expected unknown/dropped to grow by 1, got %v", got)
	}
}

func TestMiddleware_CountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/healthz", "200"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/healthz", "200")); got != before+1 {
		t.Fatalf("expected request counted, got %v", got)
	}
}
