package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/monitoring"
)

func newTestAssembler(client *MockRelayClient) *Assembler {
	a := NewAssembler(client, DefaultCompressionLevel, nil)
	a.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return a
}

func TestAssembler(t *testing.T) {
	ctx := context.Background()

	t.Run("成功与失败混合", func(t *testing.T) {
		client := new(MockRelayClient)
		client.On("Send", mock.Anything, fetchOf("https://example.com/a.txt")).
			Return(blobResponse("alpha", "text/plain"), nil)
		client.On("Send", mock.Anything, fetchOf("https://example.com/b.pdf")).
			Return(domain.RelayResponse{RelayPayload: domain.ErrorPayload("HTTP 404: Not Found")}, nil)
		client.On("Send", mock.Anything, fetchOf("https://example.com/c.bin")).
			Return(domain.RelayResponse{}, errors.New("relay unreachable"))

		result, err := newTestAssembler(client).Assemble(ctx, []domain.AttachmentDescriptor{
			descriptor(t, "https://example.com/a.txt", "a.txt"),
			descriptor(t, "https://example.com/b.pdf", "b.pdf"),
			descriptor(t, "https://example.com/c.bin", "c.bin"),
		})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Stored)
		assert.Equal(t, 2, result.Failed)
		require.Len(t, result.Entries, 3)
		assert.Equal(t, domain.EntryStored, result.Entries[0].Status)
		assert.Equal(t, "ERROR_b.pdf.txt", result.Entries[1].Name)
		assert.Equal(t, "HTTP 404: Not Found", result.Entries[1].Error)

		files, order := readZip(t, result.Data)
		assert.Equal(t, []string{"ERROR_b.pdf.txt", "ERROR_c.bin.txt", "a.txt"}, order)
		assert.Equal(t, "alpha", files["a.txt"])
		assert.Equal(t, "Failed to download this file: HTTP 404: Not Found", files["ERROR_b.pdf.txt"])
		assert.Equal(t, "Failed to download this file: relay unreachable", files["ERROR_c.bin.txt"])
		client.AssertExpectations(t)
	})

	t.Run("二进制内容原样保存", func(t *testing.T) {
		payload := string([]byte{0x00, 0xff, 0x10, 0x80, 'P', 'K'})
		client := new(MockRelayClient)
		client.On("Send", mock.Anything, fetchOf("https://example.com/x.bin")).
			Return(blobResponse(payload, "application/octet-stream"), nil)

		result, err := newTestAssembler(client).Assemble(ctx, []domain.AttachmentDescriptor{
			descriptor(t, "https://example.com/x.bin", "x.bin"),
		})
		require.NoError(t, err)

		files, _ := readZip(t, result.Data)
		assert.Equal(t, payload, files["x.bin"])
		assert.Equal(t, int64(len(payload)), result.Entries[0].Size)
	})

	t.Run("同名文件后写覆盖", func(t *testing.T) {
		client := new(MockRelayClient)
		client.On("Send", mock.Anything, fetchOf("https://example.com/1")).Return(blobResponse("one", "text/plain"), nil)
		client.On("Send", mock.Anything, fetchOf("https://example.com/2")).Return(blobResponse("two", "text/plain"), nil)

		result, err := newTestAssembler(client).Assemble(ctx, []domain.AttachmentDescriptor{
			descriptor(t, "https://example.com/1", "same.txt"),
			descriptor(t, "https://example.com/2", "same.txt"),
		})
		require.NoError(t, err)

		files, _ := readZip(t, result.Data)
		assert.Len(t, files, 1)
		assert.Contains(t, []string{"one", "two"}, files["same.txt"])
	})

	t.Run("清理文件名并为空名使用序号", func(t *testing.T) {
		client := new(MockRelayClient)
		client.On("Send", mock.Anything, fetchOf("https://example.com/1")).Return(blobResponse("x", "text/plain"), nil)
		client.On("Send", mock.Anything, fetchOf("https://example.com/2")).Return(blobResponse("y", "text/plain"), nil)

		d2, err := domain.NewAttachmentDescriptor("https://example.com/2", "", domain.AttachmentMetadata{})
		require.NoError(t, err)

		result, err := newTestAssembler(client).Assemble(ctx, []domain.AttachmentDescriptor{
			descriptor(t, "https://example.com/1", `a/b:c?.txt`),
			d2,
		})
		require.NoError(t, err)

		files, _ := readZip(t, result.Data)
		assert.Equal(t, "x", files["a_b_c_.txt"])
		assert.Equal(t, "y", files["attachment_2"])
	})

	t.Run("中继成功但没有内容", func(t *testing.T) {
		client := new(MockRelayClient)
		client.On("Send", mock.Anything, fetchOf("https://example.com/e")).
			Return(domain.RelayResponse{RelayPayload: domain.RelayPayload{Status: domain.StatusSuccess}}, nil)

		result, err := newTestAssembler(client).Assemble(ctx, []domain.AttachmentDescriptor{
			descriptor(t, "https://example.com/e", "e.txt"),
		})
		require.NoError(t, err)
		assert.Equal(t, ErrNoData.Error(), result.Entries[0].Error)
	})

	t.Run("中继错误没有消息", func(t *testing.T) {
		client := new(MockRelayClient)
		client.On("Send", mock.Anything, fetchOf("https://example.com/e")).
			Return(domain.RelayResponse{RelayPayload: domain.RelayPayload{Status: domain.StatusError}}, nil)

		result, err := newTestAssembler(client).Assemble(ctx, []domain.AttachmentDescriptor{
			descriptor(t, "https://example.com/e", "e.txt"),
		})
		require.NoError(t, err)
		assert.Equal(t, "unknown relay error", result.Entries[0].Error)
	})

	t.Run("没有附件", func(t *testing.T) {
		_, err := newTestAssembler(new(MockRelayClient)).Assemble(ctx, nil)
		assert.ErrorIs(t, err, ErrNoAttachments)
	})
}

func TestAssemblerRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg, reg)

	client := new(MockRelayClient)
	client.On("Send", mock.Anything, fetchOf("https://example.com/a")).Return(blobResponse("a", "text/plain"), nil)
	client.On("Send", mock.Anything, fetchOf("https://example.com/b")).Return(domain.RelayResponse{}, errors.New("boom"))

	a := newTestAssembler(client)
	a.SetMetrics(metrics)

	_, err := a.Assemble(context.Background(), []domain.AttachmentDescriptor{
		descriptor(t, "https://example.com/a", "a.txt"),
		descriptor(t, "https://example.com/b", "b.txt"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, reg, "gmailbulker_archives_created_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "gmailbulker_archive_entries_total", map[string]string{"status": "stored"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "gmailbulker_archive_entries_total", map[string]string{"status": "failed"}))
}

// counterValue 从注册表中读取计数器的值，labels 为 nil 时取第一条
func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
