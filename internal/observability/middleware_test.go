package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/receiptctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newRouter(logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/receipts/latest", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	return r
}

func serve(r http.Handler, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
}

func TestRequestLoggerLevels(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	r := newRouter(zerolog.New(&buf).Level(zerolog.DebugLevel))

	serve(r, "/health")
	assert.Empty(t, buf.String(), "probe routes log below debug")

	serve(r, "/receipts/latest")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"route":"/receipts/latest"`)
	assert.Contains(t, buf.String(), `"status":404`)
}

func TestRequestMetricsUseRouteLabels(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	r := newRouter(zerolog.Nop())

	unmatched := httpRequests.WithLabelValues(http.MethodGet, "unmatched", "404")
	before := testutil.ToFloat64(unmatched)
	serve(r, "/no/such/route")
	serve(r, "/another/missing")
	assert.Equal(t, before+2, testutil.ToFloat64(unmatched))

	latest := httpRequests.WithLabelValues(http.MethodGet, "/receipts/latest", "404")
	before = testutil.ToFloat64(latest)
	serve(r, "/receipts/latest")
	assert.Equal(t, before+1, testutil.ToFloat64(latest))
}
