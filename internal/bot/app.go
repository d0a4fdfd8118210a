// Package bot routes Telegram updates to command and callback handlers
// driving the aria2 engine and the history store.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
	"github.com/dnslin/aria2-tg-bot/internal/config"
	"github.com/dnslin/aria2-tg-bot/internal/history"
	"github.com/dnslin/aria2-tg-bot/internal/pagestate"
	"github.com/dnslin/aria2-tg-bot/internal/telegram"
)

const pollTimeout = 30 // seconds, server-side getUpdates hold

// Engine is the aria2 surface the handlers drive.
type Engine interface {
	AddURI(ctx context.Context, uris []string, options map[string]any) (string, error)
	TellStatus(ctx context.Context, gid string) (aria2.Snapshot, error)
	TellActive(ctx context.Context) ([]aria2.Snapshot, error)
	TellWaiting(ctx context.Context, offset, limit int) ([]aria2.Snapshot, error)
	Pause(ctx context.Context, gid string) error
	Unpause(ctx context.Context, gid string) error
	Remove(ctx context.Context, gid string) error
	PauseAll(ctx context.Context) error
	UnpauseAll(ctx context.Context) error
	GlobalStat(ctx context.Context) (aria2.GlobalStat, error)
}

// HistoryStore is the history surface the handlers use.
type HistoryStore interface {
	Upsert(ctx context.Context, rec history.Record) (int64, error)
	List(ctx context.Context, page, pageSize int, statusFilter string) ([]history.Record, int, error)
	GetByGID(ctx context.Context, gid string) (*history.Record, error)
	Search(ctx context.Context, keyword string, page, pageSize int) ([]history.Record, int, error)
	Clear(ctx context.Context) (int64, error)
}

// Messenger is the Telegram surface the handlers use.
type Messenger interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, html string, keyboard *telegram.InlineKeyboardMarkup) (int64, error)
	EditMessage(ctx context.Context, chatID, messageID int64, html string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	SetMyCommands(ctx context.Context, cmds []telegram.BotCommand) error
}

// TaskMonitor is the registration surface of the task monitor.
type TaskMonitor interface {
	Register(chatID, messageID int64, gid string)
	Unregister(chatID, messageID int64)
	FinalizeGID(ctx context.Context, gid, html string)
}

// Deps bundles everything the handlers need. Constructed once at startup.
type Deps struct {
	Engine  Engine
	Store   HistoryStore
	TG      Messenger
	Monitor TaskMonitor
	Pages   *pagestate.Registry
	Logger  *slog.Logger
}

// App is the bot application: a long-poll loop dispatching updates.
type App struct {
	engine     Engine
	store      HistoryStore
	tg         Messenger
	monitor    TaskMonitor
	pages      *pagestate.Registry
	logger     *slog.Logger
	authorized map[int64]bool
	perPage    int

	// pendingClear holds users awaiting the clear-history confirmation,
	// mapped to the confirmation's expiry.
	pendingMu    sync.Mutex
	pendingClear map[int64]time.Time
	now          func() time.Time
}

// NewApp wires an App from config and dependencies.
func NewApp(cfg config.Config, deps Deps) *App {
	authorized := make(map[int64]bool, len(cfg.Telegram.AuthorizedUsers))
	for _, id := range cfg.Telegram.AuthorizedUsers {
		authorized[id] = true
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &App{
		engine:       deps.Engine,
		store:        deps.Store,
		tg:           deps.TG,
		monitor:      deps.Monitor,
		pages:        deps.Pages,
		logger:       logger,
		authorized:   authorized,
		perPage:      cfg.Pagination.ItemsPerPage,
		pendingClear: make(map[int64]time.Time),
		now:          time.Now,
	}
}

// Run registers the command menu and long-polls until ctx is cancelled.
// Each update is dispatched in its own goroutine.
func (a *App) Run(ctx context.Context) error {
	if err := a.tg.SetMyCommands(ctx, commandMenu()); err != nil {
		a.logger.Warn("set command menu failed", "error", err)
	}

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := a.tg.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("poll failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			u := u
			go a.dispatch(ctx, u)
		}
	}
}

func (a *App) dispatch(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		a.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && strings.HasPrefix(u.Message.Text, "/"):
		a.handleCommand(ctx, u.Message)
	}
}

func (a *App) handleCommand(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil {
		return
	}
	name, args := splitCommand(msg.Text)
	a.logger.Info("command received", "user", msg.From.ID, "command", name)

	if !a.authorized[msg.From.ID] {
		a.logger.Warn("unauthorized command", "user", msg.From.ID, "command", name)
		a.reply(ctx, msg.Chat.ID, "⛔ You are not authorized to use this bot.")
		return
	}

	handler, ok := a.commandTable()[name]
	if !ok {
		a.reply(ctx, msg.Chat.ID, "Unknown command. Use /help for the command list.")
		return
	}
	handler(ctx, msg, args)
}

// splitCommand extracts the command name (without slash or @botname
// mention) and the argument string.
func splitCommand(text string) (name, args string) {
	name, args, _ = strings.Cut(text, " ")
	name = strings.TrimPrefix(name, "/")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(args)
}

// reply sends a plain HTML message, logging delivery failures.
func (a *App) reply(ctx context.Context, chatID int64, html string) (int64, bool) {
	id, err := a.tg.SendMessage(ctx, chatID, html, nil)
	if err != nil {
		a.logger.Warn("reply failed", "chat", chatID, "error", err)
		return 0, false
	}
	return id, true
}

// edit replaces a previous reply, logging failures.
func (a *App) edit(ctx context.Context, chatID, messageID int64, html string, kb *telegram.InlineKeyboardMarkup) bool {
	err := a.tg.EditMessage(ctx, chatID, messageID, html, kb)
	if err != nil && !telegram.IsNotModified(err) {
		a.logger.Warn("edit failed", "chat", chatID, "message", messageID, "error", err)
		return false
	}
	return true
}

func commandMenu() []telegram.BotCommand {
	return []telegram.BotCommand{
		{Command: "add", Description: "Add a download (URL, FTP or magnet)"},
		{Command: "status", Description: "Show tasks, or one task by GID"},
		{Command: "pause", Description: "Pause a task by GID"},
		{Command: "unpause", Description: "Resume a task by GID"},
		{Command: "remove", Description: "Remove a task by GID"},
		{Command: "pauseall", Description: "Pause all tasks"},
		{Command: "unpauseall", Description: "Resume all tasks"},
		{Command: "history", Description: "Browse download history"},
		{Command: "searchhistory", Description: "Search download history"},
		{Command: "clearhistory", Description: "Clear download history"},
		{Command: "globalstatus", Description: "Show engine status"},
		{Command: "help", Description: "Show help"},
	}
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
