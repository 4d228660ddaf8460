package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordForumOp(t *testing.T) {
	before := testutil.ToFloat64(ForumOperationsTotal.WithLabelValues("create_post", "error"))
	RecordForumOp("create_post", errors.New("boom"))
	RecordForumOp("create_post", nil)

	if got := testutil.ToFloat64(ForumOperationsTotal.WithLabelValues("create_post", "error")); got != before+1 {
		t.Errorf("error counter = %v, want %v", got, before+1)
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(GinMiddleware())
	engine.GET("/forum/threads/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/forum/threads/:id", "200")
	before := testutil.ToFloat64(counter)

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forum/threads/3", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forum/threads/4", nil))

	if got := testutil.ToFloat64(counter); got != before+2 {
		t.Errorf("request counter = %v, want %v", got, before+2)
	}
}
