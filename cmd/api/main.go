package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/config"
	"github.com/zhouzirui/z-coach/internal/handler"
	"github.com/zhouzirui/z-coach/internal/logging"
	"github.com/zhouzirui/z-coach/internal/service/conversation"
	"github.com/zhouzirui/z-coach/internal/service/emotion"
	"github.com/zhouzirui/z-coach/internal/service/reply"
	"github.com/zhouzirui/z-coach/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger := logging.New(cfg.Log)
	if envErr != nil {
		logger.WithError(envErr).Info("no .env file loaded, continuing with system environment variables only")
	}

	store, closeStore := openStore(cfg.Storage, logger)
	defer closeStore()

	var generator reply.Generator = reply.StaticGenerator{}
	var tone emotion.Classifier = emotion.Heuristic{}
	if cfg.AI.Enabled() {
		generator, tone = initModel(ctx, cfg.AI, logger)
	} else {
		logger.Info("Ark 凭证未配置，使用回显回复")
	}

	var synth speech.Synthesizer = speech.SilentSynthesizer{}
	if cfg.Speech.Enabled {
		synth = speech.NewVolcengineTTS(cfg.Speech, logger)
		logger.WithField("voice", cfg.Speech.Voice).Info("speech synthesis initialized")
	} else {
		logger.Info("语音服务凭证未配置，回复仅包含文本")
	}

	router := handler.NewRouter(handler.Services{
		Store:         store,
		Generator:     generator,
		Synthesizer:   synth,
		Tone:          tone,
		HistoryLimit:  cfg.AI.HistoryLimit,
		AIEnabled:     cfg.AI.Enabled(),
		SpeechEnabled: cfg.Speech.Enabled,
	}, logger)

	startServer(ctx, cfg.Server, router, logger)
}

// initModel 创建一次聊天模型，供回复生成与语气判断共用。失败时退回回显与关键词规则。
func initModel(ctx context.Context, cfg config.AIConfig, logger logrus.FieldLogger) (reply.Generator, emotion.Classifier) {
	var tone emotion.Classifier = emotion.Heuristic{}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to initialize chat model, continuing with echo replies - 请检查 Ark 模型相关环境变量")
		return reply.StaticGenerator{}, tone
	}

	generator, err := reply.NewChainGenerator(ctx, chatModel, cfg.SystemPrompt, cfg.HistoryLimit, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to build reply chain, continuing with echo replies")
		return reply.StaticGenerator{}, tone
	}
	logger.WithField("model", cfg.Model).Info("reply model initialized")

	if cfg.ToneLLM {
		classifier, err := emotion.NewService(ctx, chatModel, cfg.HistoryLimit, logger)
		if err != nil {
			logger.WithError(err).Warn("failed to build tone classifier, using keyword rules")
		} else {
			tone = classifier
			logger.Info("tone classifier enabled")
		}
	}
	return generator, tone
}

// openStore 有 DATABASE_URL 时使用 Postgres，否则退回内存存储。
func openStore(cfg config.StorageConfig, logger logrus.FieldLogger) (conversation.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, conversations are kept in memory")
		return conversation.NewMemoryStore(), func() {}
	}

	store, err := conversation.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to open conversation database")
	}
	logger.Info("conversation database connected")
	return store, func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close conversation database")
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger logrus.FieldLogger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", addr).Info("coach backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.WithError(err).Fatal("server error")
	}
	logger.Info("coach backend stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
