package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmailbulker/internal/storage/memory"
)

// brokenStore 健康检查总是失败的存储
type brokenStore struct {
	*memory.Store
}

func (brokenStore) Health(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHealthChecker(t *testing.T) {
	t.Run("全部正常", func(t *testing.T) {
		hc := NewHealthChecker(Options{
			Store: memory.NewStore(time.Hour),
			Fs:    afero.NewMemMapFs(),
			Dir:   "/downloads",
		})

		results := hc.CheckHealth()
		assert.Equal(t, "OK", results["download-store"])
		assert.Equal(t, "OK", results["download-dir"])
		_, err := time.Parse(time.RFC3339, results["timestamp"])
		assert.NoError(t, err)

		w := httptest.NewRecorder()
		hc.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("存储不可用", func(t *testing.T) {
		hc := NewHealthChecker(Options{Store: brokenStore{memory.NewStore(time.Hour)}})

		results := hc.CheckHealth()
		assert.Equal(t, "ERROR: connection refused", results["download-store"])

		w := httptest.NewRecorder()
		hc.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		w = httptest.NewRecorder()
		hc.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("下载目录被文件占用", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/downloads", []byte("x"), 0644))
		hc := NewHealthChecker(Options{Fs: fs, Dir: "/downloads"})

		assert.True(t, strings.HasPrefix(hc.CheckHealth()["download-dir"], "ERROR:"))
	})

	t.Run("检查结果导出为指标", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		hc := NewHealthChecker(Options{
			Store:      memory.NewStore(time.Hour),
			Registerer: reg,
			Namespace:  "gmailbulker",
		})

		w := httptest.NewRecorder()
		hc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		families, err := reg.Gather()
		require.NoError(t, err)
		var names []string
		for _, mf := range families {
			names = append(names, mf.GetName())
		}
		assert.Contains(t, names, "gmailbulker_healthcheck_status")
	})
}
