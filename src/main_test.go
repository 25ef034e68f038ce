package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"drug-checker-go/src/configs"
	"drug-checker-go/src/core/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct{}

func (stubService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return nil
}

func TestNewRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, err := NewRouter(configs.Default(), utils.NewConsoleLogger("error", io.Discard), stubService{}, context.Background())
	require.NoError(t, err)

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/healthz", http.StatusOK, `{"status":"ok"}`},
		{"/api/ping", http.StatusOK, "pong"},
		{"/metrics", http.StatusOK, "http_requests_total"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}
