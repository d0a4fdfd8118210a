// Command aria2bot runs the Telegram bot that drives an aria2 download
// engine: command handling, live task tracking, download history, and
// completion notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
	"github.com/dnslin/aria2-tg-bot/internal/bot"
	"github.com/dnslin/aria2-tg-bot/internal/config"
	"github.com/dnslin/aria2-tg-bot/internal/format"
	"github.com/dnslin/aria2-tg-bot/internal/history"
	"github.com/dnslin/aria2-tg-bot/internal/logging"
	"github.com/dnslin/aria2-tg-bot/internal/monitor"
	"github.com/dnslin/aria2-tg-bot/internal/notify"
	"github.com/dnslin/aria2-tg-bot/internal/observer"
	"github.com/dnslin/aria2-tg-bot/internal/pagestate"
	"github.com/dnslin/aria2-tg-bot/internal/telegram"
)

const serviceName = "aria2-tg-bot"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, logCloser, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		inst, shutdown, err = observer.Init(ctx, serviceName)
		if err != nil {
			logger.Error("observer init failed", "error", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("observer shutdown failed", "error", err)
			}
		}()
	}

	engineClient := aria2.New(cfg.Aria2.Host, cfg.Aria2.Port, cfg.Aria2.Secret,
		aria2.WithLogger(logger),
		aria2.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Aria2.TimeoutSeconds) * time.Second}))

	var engine bot.Engine = engineClient
	var monitorEngine monitor.Engine = engineClient
	if inst != nil {
		wrapped := observer.WrapEngine(engineClient, inst)
		engine = wrapped
		monitorEngine = wrapped
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	stat, err := engine.GlobalStat(probeCtx)
	cancel()
	if err != nil {
		logger.Error("aria2 unreachable", "host", cfg.Aria2.Host, "port", cfg.Aria2.Port, "error", err)
		return 1
	}
	logger.Info("aria2 connected", "version", stat.Version,
		"active", stat.NumActive, "waiting", stat.NumWaiting)

	store, err := history.New(cfg.Database.Path,
		history.WithLogger(logger),
		history.WithMaxHistory(cfg.Database.MaxHistory))
	if err != nil {
		logger.Error("history store open failed", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		logger.Error("history schema init failed", "error", err)
		return 1
	}

	var tgOpts []telegram.Option
	if cfg.Telegram.APIBaseURL != "" {
		tgOpts = append(tgOpts, telegram.WithBaseURL(cfg.Telegram.APIBaseURL))
	}
	tg := telegram.NewClient(cfg.Telegram.Token, tgOpts...)

	var editor monitor.Messenger = tg
	if inst != nil {
		editor = observer.WrapMessenger(tg, inst)
	}

	monitorOpts := []monitor.Option{
		monitor.WithInterval(time.Duration(cfg.Monitor.IntervalSeconds) * time.Second),
		monitor.WithLogger(logger),
		monitor.WithKeyboard(bot.ControlKeyboard),
	}
	if inst != nil {
		monitorOpts = append(monitorOpts, monitor.WithTickHook(func(elapsed time.Duration) {
			inst.TickDuration.Record(context.Background(), elapsed.Seconds())
		}))
	}
	mon := monitor.New(monitorEngine, editor, store, format.TaskDetail, monitorOpts...)
	mon.Start()
	defer mon.Stop()

	send := func(ctx context.Context, chatID int64, html string) error {
		_, err := tg.SendMessage(ctx, chatID, html, nil)
		if err == nil && inst != nil {
			inst.Notifications.Add(ctx, 1)
		}
		return err
	}
	notifier := notify.New(store, send, format.Notification, cfg.NotifyRecipients(),
		notify.WithInterval(time.Duration(cfg.Notification.IntervalSeconds)*time.Second),
		notify.WithLogger(logger),
		notify.WithEnabled(cfg.Notification.Enabled))
	notifier.Start()
	defer notifier.Stop()

	app := bot.NewApp(cfg, bot.Deps{
		Engine:  engine,
		Store:   store,
		TG:      tg,
		Monitor: mon,
		Pages:   pagestate.New(pagestate.DefaultTTL),
		Logger:  logger,
	})

	logger.Info("bot started", "authorized_users", len(cfg.Telegram.AuthorizedUsers))
	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("update loop failed", "error", err)
		return 1
	}
	logger.Info("shutting down")
	return 0
}
