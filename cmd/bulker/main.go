package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gmailbulker/internal/cache"
	"gmailbulker/internal/config"
	"gmailbulker/internal/domain"
	"gmailbulker/internal/host"
	"gmailbulker/internal/host/webmail"
	"gmailbulker/internal/logger"
	"gmailbulker/internal/monitoring"
	"gmailbulker/internal/relay"
	"gmailbulker/internal/saver"
	"gmailbulker/internal/service"
)

// main 打开一个已渲染的邮件页面，为每封已加载的邮件挂载按钮并依次点击，
// 把附件打包成 ZIP 保存到下载目录。
func main() {
	var (
		source  = pflag.StringP("page", "p", "", "rendered webmail page: local file or http(s) URL")
		baseURL = pflag.String("base-url", "", "page URL used to resolve relative links (default: resolver.base_url)")
		address = pflag.String("relay", "", "relay address, overrides GMAILBULKER_RELAY_ADDRESS")
		tabID   = pflag.Int("tab", 1, "tab id sent with the SDK bootstrap message")
		timeout = pflag.Duration("timeout", 10*time.Minute, "overall timeout")
	)
	pflag.Parse()

	if *source == "" {
		fmt.Fprintln(os.Stderr, "usage: bulker --page <file|url> [--relay <address>]")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Relay.Address = *address
	}
	if *baseURL == "" {
		*baseURL = cfg.Resolver.BaseURL
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log, "bulker"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, cfg, *source, *baseURL, *tabID, log); err != nil {
		log.Error("bulker failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, source, baseURL string, tabID int, log *zap.Logger) error {
	fs := afero.NewOsFs()
	metrics := monitoring.NewMetrics()

	// 没有配置中继地址时在进程内运行中继
	var local relay.Handler
	if cfg.Relay.Address == "" {
		stack, err := relay.NewStack(cfg, fs, metrics, log)
		if err != nil {
			return err
		}
		defer stack.Close()
		local = stack.Router
	}

	client, err := relay.NewClient(ctx, cfg.Relay, local, log)
	if err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	defer client.Close()

	page, err := webmail.OpenPage(ctx, fs, &http.Client{Timeout: 30 * time.Second}, source, baseURL)
	if err != nil {
		return err
	}

	blobs := cache.NewBlobCache(time.Minute, 30*time.Second)
	defer blobs.Close()

	resolver := service.NewResolver(cfg.Resolver, log)
	extractor := service.NewExtractor(log)
	collector := service.NewCollector(resolver, extractor, log)
	assembler := service.NewAssembler(client, cfg.Assembler.CompressionLevel, log)
	assembler.SetMetrics(metrics)
	fileSaver := saver.NewFileSaver(fs, cfg.Download.Dir, blobs, cfg.Assembler.RevokeDelay, log)
	bulker := service.NewBulker(collector, assembler, fileSaver, host.NewWriterNotifier(os.Stderr), log)

	loader := service.NewBootstrapLoader(client, page.Loader(), domain.InjectPageWorldPayload{TabID: tabID}, log)
	if err := bulker.Start(ctx, loader); err != nil {
		return err
	}

	clicked := 0
	for _, view := range page.MessageViews() {
		for i := range view.Buttons() {
			if err := view.Click(ctx, i); err != nil {
				log.Warn("click failed", zap.String("view", view.ID()), zap.Error(err))
				continue
			}
			clicked++
		}
	}
	if clicked == 0 {
		log.Info("no loaded message views on page", zap.String("source", source))
	}

	bulker.Wait()

	// 等待对象引用释放
	time.Sleep(cfg.Assembler.RevokeDelay)
	return nil
}
