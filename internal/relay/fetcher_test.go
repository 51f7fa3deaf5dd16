package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincent-petithory/dataurl"

	"gmailbulker/internal/domain"
)

// pngHeader 足以被识别为 PNG 的文件头
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newBlobServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("hello world"))
	})
	mux.HandleFunc("/untyped", func(w http.ResponseWriter, r *http.Request) {
		// 阻止 net/http 自动嗅探类型
		w.Header()["Content-Type"] = nil
		w.Write(pngHeader)
	})
	mux.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(r.UserAgent()))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decodeBlob(t *testing.T, p domain.RelayPayload) *dataurl.DataURL {
	t.Helper()
	du, err := dataurl.DecodeString(p.Data)
	require.NoError(t, err)
	return du
}

func TestFetcher(t *testing.T) {
	srv := newBlobServer(t)
	ctx := context.Background()

	t.Run("成功抓取并编码为 data URI", func(t *testing.T) {
		f := NewFetcher(srv.Client(), "", nil, nil)
		p := f.Fetch(ctx, srv.URL+"/text", "a.txt")

		require.True(t, p.IsSuccess(), p.Message)
		assert.Equal(t, int64(11), p.Size)
		assert.Equal(t, "text/plain; charset=utf-8", p.Type)

		du := decodeBlob(t, p)
		assert.Equal(t, "hello world", string(du.Data))
		assert.Equal(t, "text/plain", du.MediaType.ContentType())
		assert.Equal(t, "utf-8", du.Params["charset"])
	})

	t.Run("缺少 Content-Type 时按内容识别", func(t *testing.T) {
		f := NewFetcher(srv.Client(), "", nil, nil)
		p := f.Fetch(ctx, srv.URL+"/untyped", "img")

		require.True(t, p.IsSuccess(), p.Message)
		assert.Equal(t, "image/png", p.Type)
		assert.Equal(t, pngHeader, decodeBlob(t, p).Data)
	})

	t.Run("携带 User-Agent", func(t *testing.T) {
		f := NewFetcher(srv.Client(), "gmailbulker-test", nil, nil)
		p := f.Fetch(ctx, srv.URL+"/agent", "ua")
		require.True(t, p.IsSuccess())
		assert.Equal(t, "gmailbulker-test", string(decodeBlob(t, p).Data))
	})

	t.Run("非 2xx 响应", func(t *testing.T) {
		f := NewFetcher(srv.Client(), "", nil, nil)
		p := f.Fetch(ctx, srv.URL+"/missing", "x")
		assert.Equal(t, domain.StatusError, p.Status)
		assert.Equal(t, "HTTP 404: Not Found", p.Message)
		assert.Empty(t, p.Data)
	})

	t.Run("网络错误", func(t *testing.T) {
		f := NewFetcher(srv.Client(), "", nil, nil)
		p := f.Fetch(ctx, "http://127.0.0.1:1/x", "x")
		assert.Equal(t, domain.StatusError, p.Status)
		assert.NotEmpty(t, p.Message)
	})
}

func TestEncodeDataURL(t *testing.T) {
	t.Run("保留参数", func(t *testing.T) {
		du, err := dataurl.DecodeString(EncodeDataURL([]byte("x"), "text/csv; charset=utf-8"))
		require.NoError(t, err)
		assert.Equal(t, "text/csv", du.MediaType.ContentType())
		assert.Equal(t, "utf-8", du.Params["charset"])
	})

	t.Run("无法解析的类型", func(t *testing.T) {
		for _, ct := range []string{"", "garbage", "a/b/c"} {
			du, err := dataurl.DecodeString(EncodeDataURL([]byte{0, 1, 2}, ct))
			require.NoError(t, err, ct)
			assert.Equal(t, "application/octet-stream", du.MediaType.ContentType(), ct)
			assert.Equal(t, []byte{0, 1, 2}, du.Data)
		}
	})
}
