package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packratbot/packrat/internal/ai"
	"github.com/packratbot/packrat/internal/archive"
	"github.com/packratbot/packrat/internal/batch"
	"github.com/packratbot/packrat/internal/channel"
	"github.com/packratbot/packrat/internal/channel/telegram"
	"github.com/packratbot/packrat/internal/config"
	"github.com/packratbot/packrat/internal/cronjob"
	"github.com/packratbot/packrat/internal/pkg/logs"
	"github.com/packratbot/packrat/internal/pkg/metrics"
)

// Gateway wires the channels, the batching pipeline, and the archive
// together and owns the observability HTTP endpoint.
type Gateway struct {
	cfg *config.Config

	detector    *batch.ForwardDetector
	aggregator  *batch.Aggregator
	archiver    *archive.Archiver
	store       *archive.Store
	maintenance *cronjob.Maintenance
	httpServer  *http.Server

	runCtx    context.Context
	runCancel context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

func NewGateway(cfg *config.Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	gw := &Gateway{cfg: cfg}

	gw.detector = batch.NewForwardDetector(
		time.Duration(cfg.Detector.Stage1WaitMS)*time.Millisecond,
		time.Duration(cfg.Detector.Stage2WaitMS)*time.Millisecond,
	)

	gw.store = archive.NewStore(cfg.Archive.DBPath)

	var summarizer *ai.Summarizer
	if cfg.AI.Enabled {
		var err error
		summarizer, err = ai.NewSummarizer(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("create summarizer: %w", err)
		}
	}

	fetcher := archive.NewPageFetcher(cfg.Archive)

	gw.archiver = archive.NewArchiver(archive.ArchiverOptions{
		Store:      gw.store,
		Fetcher:    fetcher,
		Summarizer: summarizer,
		Detector:   gw.detector,
		Send:       gw.sendReply,
	})

	gw.aggregator = batch.NewAggregator(batch.Config{
		Window:       time.Duration(cfg.Aggregator.BatchWindowMS) * time.Millisecond,
		MaxBatchSize: cfg.Aggregator.MaxBatchSize,
		MaxLocks:     cfg.Aggregator.MaxLocks,
	}, gw.detector, gw.archiver.HandleBatch)

	maintenance, err := cronjob.NewMaintenance(cfg.Maintenance, gw.detector, gw.store)
	if err != nil {
		return nil, fmt.Errorf("create maintenance: %w", err)
	}
	gw.maintenance = maintenance

	return gw, nil
}

func (gw *Gateway) Start(ctx context.Context) error {
	gw.runCtx, gw.runCancel = context.WithCancel(ctx)

	if err := gw.store.Init(gw.runCtx); err != nil {
		return fmt.Errorf("init archive store: %w", err)
	}
	if err := gw.initHTTPServer(); err != nil {
		return fmt.Errorf("init http server: %w", err)
	}
	if err := gw.initChannels(gw.runCtx, gw.cfg.Channels); err != nil {
		return fmt.Errorf("init channels: %w", err)
	}
	if gw.maintenance != nil {
		gw.maintenance.Start(gw.runCtx)
	}

	return nil
}

func (gw *Gateway) Stop(ctx context.Context) error {
	gw.stopOnce.Do(func() {
		if gw.runCancel != nil {
			gw.runCancel()
		}

		for _, ch := range channel.List() {
			if err := ch.Stop(ctx); err != nil {
				logs.CtxWarn(ctx, "[gateway] stop channel %s error: %v", ch.ID(), err)
			}
		}

		if gw.maintenance != nil {
			gw.maintenance.Stop()
		}

		if gw.httpServer != nil {
			if err := gw.httpServer.Shutdown(ctx); err != nil {
				logs.CtxWarn(ctx, "[gateway] shutdown http server error: %v", err)
			}
		}

		if err := gw.store.Close(); err != nil {
			logs.CtxWarn(ctx, "[gateway] close archive store error: %v", err)
		}

		logs.CtxInfo(ctx, "[gateway] all resources stopped")
	})
	return gw.stopErr
}

func (gw *Gateway) initChannels(ctx context.Context, channels map[string]config.ChannelConfig) error {
	for id, cfg := range channels {
		cfg.ID = id
		if !cfg.Enabled {
			logs.CtxInfo(ctx, "[gateway] channel #%s is disabled, skipping", id)
			continue
		}

		ch, err := newChannel(id, cfg)
		if err != nil {
			logs.CtxError(ctx, "[gateway] create channel #%s error: %v", id, err)
			return fmt.Errorf("create channel %s: %w", id, err)
		}

		if err = ch.RegisterMessageHandler(gw.HandleInbound); err != nil {
			return fmt.Errorf("register handler for channel %s: %w", id, err)
		}

		if err = channel.Register(ch); err != nil {
			return fmt.Errorf("register channel %s: %w", id, err)
		}

		go func(id string, ch channel.Channel) {
			logs.CtxInfo(ctx, "[gateway] starting channel #%s (%s)", id, ch.Type())
			if err := ch.Start(ctx); err != nil {
				logs.CtxError(ctx, "[gateway] channel #%s stopped with error: %v", id, err)
			}
		}(id, ch)
	}
	return nil
}

func newChannel(id string, cfg config.ChannelConfig) (channel.Channel, error) {
	switch channel.Type(strings.ToLower(strings.TrimSpace(cfg.Type))) {
	case channel.Telegram:
		return telegram.NewChannel(id, &cfg)
	default:
		return nil, fmt.Errorf("unsupported channel type: %s", cfg.Type)
	}
}

func (gw *Gateway) initHTTPServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", gw.handleHealthz)

	gw.httpServer = &http.Server{
		Addr:              gw.cfg.Gateway.Bind,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logs.Info("[gateway] observability endpoint listening on %s", gw.cfg.Gateway.Bind)
		if err := gw.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Error("[gateway] http server error: %v", err)
		}
	}()
	return nil
}

func (gw *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	aggStats := gw.aggregator.Stats()
	detStats := gw.detector.Stats()

	body, err := sonic.Marshal(map[string]any{
		"status": "ok",
		"aggregator": map[string]any{
			"open_batches":      aggStats.OpenBatches,
			"open_media_groups": aggStats.OpenMediaGroups,
			"live_timers":       aggStats.LiveTimers,
			"cached_locks":      aggStats.CachedLocks,
		},
		"detector": map[string]any{
			"pending_waits": detStats.PendingWaits,
			"stage1_ms":     detStats.Stage1WaitMS,
			"stage2_ms":     detStats.Stage2WaitMS,
		},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// sendReply delivers a bot reply through the channel the message came in on.
func (gw *Gateway) sendReply(ctx context.Context, channelID, chatID, content string) error {
	if content == "" {
		return nil
	}
	ch, err := channel.Get(channelID)
	if err != nil {
		return fmt.Errorf("channel %s not found: %w", channelID, err)
	}
	return ch.SendMessage(ctx, chatID, content)
}
