package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	envKeys := []string{
		"GMAILBULKER_SERVER_HOST",
		"GMAILBULKER_SERVER_PORT",
		"GMAILBULKER_RELAY_ADDRESS",
		"GMAILBULKER_RELAY_TRANSPORT",
		"GMAILBULKER_RESOLVER_SETTLE_DELAY",
		"GMAILBULKER_RESOLVER_MAX_RETRIES",
		"GMAILBULKER_ASSEMBLER_COMPRESSION_LEVEL",
		"GMAILBULKER_DOWNLOAD_STORE_TYPE",
		"GMAILBULKER_CORS_ALLOWED_ORIGINS",
		"GMAILBULKER_LOG_LEVEL",
	}

	// 保存原始环境变量，测试后恢复
	originalEnvs := make(map[string]string)
	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	reset := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		reset()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 8787, cfg.Server.Port)
		assert.Equal(t, "127.0.0.1:8787", cfg.Server.Addr())
		assert.Equal(t, "", cfg.Relay.Address)
		assert.Equal(t, "http", cfg.Relay.Transport)
		assert.Equal(t, 200*time.Millisecond, cfg.Resolver.SettleDelay)
		assert.Equal(t, 300*time.Millisecond, cfg.Resolver.RetryDelay)
		assert.Equal(t, 1, cfg.Resolver.MaxRetries)
		assert.Equal(t, 6, cfg.Assembler.CompressionLevel)
		assert.Equal(t, time.Second, cfg.Assembler.RevokeDelay)
		assert.Equal(t, "memory", cfg.Download.StoreType)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.True(t, cfg.Log.Suppress)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		reset()
		os.Setenv("GMAILBULKER_SERVER_PORT", "9090")
		os.Setenv("GMAILBULKER_RELAY_ADDRESS", "http://127.0.0.1:9090/")
		os.Setenv("GMAILBULKER_RELAY_TRANSPORT", "WS")
		os.Setenv("GMAILBULKER_RESOLVER_SETTLE_DELAY", "50ms")
		os.Setenv("GMAILBULKER_CORS_ALLOWED_ORIGINS", "chrome-extension://abc, https://mail.google.com")
		os.Setenv("GMAILBULKER_LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "http://127.0.0.1:9090", cfg.Relay.Address)
		assert.Equal(t, "ws", cfg.Relay.Transport)
		assert.Equal(t, 50*time.Millisecond, cfg.Resolver.SettleDelay)
		assert.Equal(t, []string{"chrome-extension://abc", "https://mail.google.com"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("无效的等待时间失败", func(t *testing.T) {
		reset()
		os.Setenv("GMAILBULKER_RESOLVER_SETTLE_DELAY", "soon")

		cfg, err := Load()
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid resolver.settle_delay")
	})

	t.Run("无效的传输方式失败", func(t *testing.T) {
		reset()
		os.Setenv("GMAILBULKER_RELAY_TRANSPORT", "carrier-pigeon")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "relay.transport")
	})

	t.Run("压缩级别越界失败", func(t *testing.T) {
		reset()
		os.Setenv("GMAILBULKER_ASSEMBLER_COMPRESSION_LEVEL", "12")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "compression_level")
	})

	t.Run("非法重试次数回退为1", func(t *testing.T) {
		reset()
		os.Setenv("GMAILBULKER_RESOLVER_MAX_RETRIES", "0")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Resolver.MaxRetries)
	})
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "单个值", input: "*", expected: []string{"*"}},
		{name: "带空格的多个值", input: " a , b ", expected: []string{"a", "b"}},
		{name: "空字符串", input: "", expected: []string{}},
		{name: "只有逗号", input: ",,,", expected: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseList(tc.input))
		})
	}
}
