package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tablebot/booking"
	"tablebot/config"
	"tablebot/gateway"
	"tablebot/journal"
	"tablebot/logger"
	"tablebot/relay"
	"tablebot/telegram"
)

const (
	pollTimeoutSec  = 30
	janitorInterval = time.Minute
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("bot stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tgbotapi.SetLogger(zap.NewStdLog(zl.Named("tgbotapi"))); err != nil {
		return err
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return err
	}
	bot.Debug = cfg.LogLevel == "debug"
	zl.Info("authorized", zap.String("account", bot.Self.UserName))

	var (
		sessions booking.Store
		pending  relay.PendingStore
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		sessions = booking.NewRedisStore(rdb, cfg.SessionTTL)
		pending = relay.NewRedisPendingStore(rdb, cfg.PendingTTL)
		zl.Info("using redis", zap.String("addr", cfg.RedisAddr))
	} else {
		mem := booking.NewMemoryStore(cfg.SessionTTL)
		go mem.RunJanitor(ctx, janitorInterval, zl.Named("sessions"))
		sessions = mem
		pendingMem := relay.NewMemoryPendingStore(cfg.PendingTTL)
		go pendingMem.RunJanitor(ctx, janitorInterval, zl.Named("pending"))
		pending = pendingMem
	}

	staff := gateway.NewTelegram(bot, cfg.StaffChatID, zl.Named("gateway"))
	var j *journal.CSV
	if cfg.JournalFile != "" {
		if j, err = journal.Open(cfg.JournalFile, zl.Named("journal")); err != nil {
			return err
		}
		staff.WithJournal(j)
	}

	var submitter booking.Submitter = staff
	if cfg.BookingAPIURL != "" {
		submitter = gateway.NewHTTP(cfg.BookingAPIURL, cfg.SubmitTimeout, zl.Named("gateway"))
	}

	var source booking.PendingSource = pending
	if cfg.PendingAPIURL != "" {
		source = relay.NewClient(cfg.PendingAPIURL, cfg.SubmitTimeout)
	}

	locations := booking.Locations(cfg.Establishments)
	dialogue := booking.NewDialogue(sessions, telegram.NewMessenger(bot), submitter, source, booking.Options{
		Locations:         locations,
		Phone:             booking.PhoneRule{Prefix: cfg.PhonePrefix, Digits: cfg.PhoneDigits},
		WebAppURL:         cfg.WebAppURL,
		MenuURL:           cfg.MenuURL,
		MaxSubmitAttempts: cfg.SubmitMaxAttempts,
		SubmitTimeout:     cfg.SubmitTimeout,
	}, zl.Named("dialogue"))
	if j != nil {
		dialogue.WithHistory(j)
	}

	// In-flight handlers finish after a shutdown signal, so they do not share ctx.
	dispatcher := telegram.NewDispatcher(context.Background(), telegram.NewAdapter(locations), dialogue, zl.Named("telegram"))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := relay.NewEngine(zl.Named("http"), cfg.AllowedOrigins)
	relay.NewServer(pending, staff, relay.Options{
		DeliveryTimeout:   cfg.SubmitTimeout,
		MaxRequestsPerMin: cfg.MaxRequestsPerMin,
	}, zl.Named("relay")).Register(engine)

	if cfg.Webhook() {
		engine.POST(telegram.Route, telegram.NewWebhook(cfg.BotToken, dispatcher, zl.Named("webhook")).Handle)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		zl.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var pollerDone chan struct{}
	if cfg.Webhook() {
		if err := telegram.RegisterWebhook(bot, cfg.PublicURL+telegram.Path(cfg.BotToken)); err != nil {
			return err
		}
		zl.Info("webhook mode", zap.String("public_url", cfg.PublicURL))
	} else {
		if err := telegram.RemoveWebhook(bot); err != nil {
			zl.Warn("failed to delete webhook", zap.Error(err))
		}
		zl.Info("polling mode")
		pollerDone = make(chan struct{})
		go func() {
			defer close(pollerDone)
			telegram.NewPoller(bot, dispatcher, pollTimeoutSec, zl.Named("poller")).Run(ctx)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		zl.Info("shutting down")
	case runErr = <-serveErr:
		zl.Error("http server failed", zap.Error(runErr))
		stop()
	}

	if cfg.Webhook() {
		if err := telegram.RemoveWebhook(bot); err != nil {
			zl.Warn("failed to delete webhook", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	if pollerDone != nil {
		<-pollerDone
	}
	dispatcher.Wait()
	zl.Info("bot exited")
	return runErr
}
