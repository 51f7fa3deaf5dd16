package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/monitoring"
)

func mustRequest(t *testing.T, typ domain.MessageType, payload interface{}) domain.RelayRequest {
	t.Helper()
	req, err := domain.NewRelayRequest(typ, payload)
	require.NoError(t, err)
	req.RequestID = "req-1"
	return req
}

func TestRouter(t *testing.T) {
	srv := newBlobServer(t)
	ctx := context.Background()

	d, _ := newTestDownloader(t, srv.Client(), 1, 4)
	d.Start()
	defer d.Stop()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "pageWorld.js", []byte("console.log(1)"), 0644))
	injector := NewFileInjector(fs, "pageWorld.js", nil)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg, reg)
	r := NewRouter(NewFetcher(srv.Client(), "", nil, nil), d, injector, metrics, nil)

	t.Run("抓取附件", func(t *testing.T) {
		resp := r.Handle(ctx, mustRequest(t, domain.MessageTypeFetchBlob, domain.FetchBlobPayload{URL: srv.URL + "/text", Filename: "a.txt"}))
		assert.Equal(t, "req-1", resp.RequestID)
		assert.True(t, resp.IsSuccess())
		assert.NotEmpty(t, resp.Data)
	})

	t.Run("抓取缺少地址", func(t *testing.T) {
		resp := r.Handle(ctx, mustRequest(t, domain.MessageTypeFetchBlob, domain.FetchBlobPayload{Filename: "a.txt"}))
		assert.Equal(t, domain.StatusError, resp.Status)
		assert.Equal(t, domain.ErrMissingURL.Error(), resp.Message)
	})

	t.Run("后台下载返回编号", func(t *testing.T) {
		resp := r.Handle(ctx, mustRequest(t, domain.MessageTypeDownloadAttachment, domain.DownloadAttachmentPayload{URL: srv.URL + "/text", Filename: "b.txt"}))
		require.True(t, resp.IsSuccess(), resp.Message)
		assert.Positive(t, resp.DownloadID)
		waitFinished(t, d, resp.DownloadID)
	})

	t.Run("后台下载校验失败", func(t *testing.T) {
		resp := r.Handle(ctx, mustRequest(t, domain.MessageTypeDownloadAttachment, domain.DownloadAttachmentPayload{URL: srv.URL + "/text"}))
		assert.Equal(t, domain.StatusError, resp.Status)
		assert.Equal(t, "URL or filename missing", resp.Message)
	})

	t.Run("载荷格式错误", func(t *testing.T) {
		req := domain.RelayRequest{Type: domain.MessageTypeFetchBlob, Payload: json.RawMessage(`"nope"`)}
		resp := r.Handle(ctx, req)
		assert.Equal(t, domain.StatusError, resp.Status)
		assert.Contains(t, resp.Message, "invalid payload")
	})

	t.Run("注入页面脚本", func(t *testing.T) {
		frame := 3
		resp := r.Handle(ctx, mustRequest(t, domain.MessageTypeInjectPageWorld, domain.InjectPageWorldPayload{TabID: 7, DocumentID: "doc", FrameID: &frame}))
		require.NotNil(t, resp.OK)
		assert.True(t, *resp.OK)
		assert.Empty(t, resp.Error)

		injections := injector.Injections()
		require.Len(t, injections, 1)
		assert.Equal(t, 7, injections[0].Target.TabID)
		assert.Nil(t, injections[0].Target.FrameID)
	})

	t.Run("注入缺少目标", func(t *testing.T) {
		resp := r.Handle(ctx, mustRequest(t, domain.MessageTypeInjectPageWorld, domain.InjectPageWorldPayload{}))
		require.NotNil(t, resp.OK)
		assert.False(t, *resp.OK)
		assert.Equal(t, ErrMissingTarget.Error(), resp.Error)
	})

	t.Run("未知消息类型", func(t *testing.T) {
		resp := r.Handle(ctx, domain.RelayRequest{Type: "bogus", RequestID: "x"})
		assert.True(t, IsUnknownType(resp))
		assert.Equal(t, "x", resp.RequestID)

		resp = r.Handle(ctx, domain.RelayRequest{})
		assert.True(t, IsUnknownType(resp))
	})
}

func TestRouterWithoutOptionalParts(t *testing.T) {
	ctx := context.Background()
	r := NewRouter(NewFetcher(nil, "", nil, nil), nil, nil, nil, nil)

	t.Run("没有注入器", func(t *testing.T) {
		resp := r.Handle(ctx, mustRequest(t, domain.MessageTypeInjectPageWorld, domain.InjectPageWorldPayload{TabID: 1}))
		require.NotNil(t, resp.OK)
		assert.False(t, *resp.OK)
		assert.Equal(t, "scripting API unavailable", resp.Error)
	})

	t.Run("没有下载器", func(t *testing.T) {
		resp := r.Handle(ctx, mustRequest(t, domain.MessageTypeDownloadAttachment, domain.DownloadAttachmentPayload{URL: "https://example.com/a", Filename: "a"}))
		assert.Equal(t, ErrDownloadNotStarted.Error(), resp.Message)
	})
}

func TestFileInjectorMissingScript(t *testing.T) {
	i := NewFileInjector(afero.NewMemMapFs(), "pageWorld.js", nil)
	err := i.InjectPageWorld(context.Background(), domain.InjectPageWorldPayload{TabID: 1})
	require.Error(t, err)
	assert.Equal(t, "could not load file: 'pageWorld.js'", err.Error())
	assert.Empty(t, i.Injections())
}

func TestFileInjectorCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	i := NewFileInjector(afero.NewMemMapFs(), "pageWorld.js", nil)
	assert.ErrorIs(t, i.InjectPageWorld(ctx, domain.InjectPageWorldPayload{TabID: 1}), context.DeadlineExceeded)
}
