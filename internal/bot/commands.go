package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
	"github.com/dnslin/aria2-tg-bot/internal/format"
	"github.com/dnslin/aria2-tg-bot/internal/history"
	"github.com/dnslin/aria2-tg-bot/internal/pagestate"
	"github.com/dnslin/aria2-tg-bot/internal/telegram"
)

type handlerFunc func(ctx context.Context, msg *telegram.Message, args string)

var uriPattern = regexp.MustCompile(`(?i)^(https?|ftp|magnet):`)

// clearConfirmWindow is how long a /clearhistory confirmation stays valid.
const clearConfirmWindow = 60 * time.Second

// commandTable maps command names to their handlers.
func (a *App) commandTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		"start":         a.cmdStart,
		"help":          a.cmdHelp,
		"add":           a.cmdAdd,
		"status":        a.cmdStatus,
		"pause":         a.cmdPause,
		"unpause":       a.cmdUnpause,
		"remove":        a.cmdRemove,
		"pauseall":      a.cmdPauseAll,
		"unpauseall":    a.cmdUnpauseAll,
		"history":       a.cmdHistory,
		"clearhistory":  a.cmdClearHistory,
		"globalstatus":  a.cmdGlobalStatus,
		"searchhistory": a.cmdSearchHistory,
		"cancel":        a.cmdCancel,
	}
}

func (a *App) cmdStart(ctx context.Context, msg *telegram.Message, _ string) {
	a.reply(ctx, msg.Chat.ID,
		"🎉 <b>Welcome!</b>\n\nThis bot manages aria2 downloads for you.\nUse /help to see all commands.")
}

func (a *App) cmdHelp(ctx context.Context, msg *telegram.Message, _ string) {
	a.reply(ctx, msg.Chat.ID, "❓ <b>Commands</b>\n\n"+
		"/add &lt;url_or_magnet&gt; - add a download\n"+
		"/status - list active and waiting tasks\n"+
		"/status &lt;gid&gt; - show one task in detail\n"+
		"/pause &lt;gid&gt; - pause a task\n"+
		"/unpause &lt;gid&gt; - resume a task\n"+
		"/remove &lt;gid&gt; - remove a task\n"+
		"/pauseall - pause everything\n"+
		"/unpauseall - resume everything\n"+
		"/history - browse download history\n"+
		"/searchhistory &lt;keyword&gt; - search history\n"+
		"/clearhistory - wipe history (asks first)\n"+
		"/globalstatus - engine-wide status\n"+
		"/help - this text\n\n"+
		"The GID is the 16-character id aria2 assigns to each task.\n"+
		"Detail views carry pause/resume/remove buttons; listings paginate.")
}

func (a *App) cmdAdd(ctx context.Context, msg *telegram.Message, args string) {
	if args == "" {
		a.reply(ctx, msg.Chat.ID,
			"⚠️ <b>Error:</b> missing URL or magnet link\nUsage: <code>/add url_or_magnet</code>")
		return
	}
	if !uriPattern.MatchString(args) {
		a.reply(ctx, msg.Chat.ID,
			"⚠️ <b>Error:</b> the link must start with http://, https://, ftp:// or magnet:")
		return
	}

	msgID, ok := a.reply(ctx, msg.Chat.ID, "⚙️ Adding download...")
	if !ok {
		return
	}

	gid, err := a.engine.AddURI(ctx, []string{args}, nil)
	if err != nil {
		a.edit(ctx, msg.Chat.ID, msgID, "❌ <b>Adding the download failed:</b> "+format.EscapeHTML(err.Error()), nil)
		return
	}

	snap, err := a.engine.TellStatus(ctx, gid)
	if err != nil {
		// Added but not yet visible; the monitor fills in the details.
		a.edit(ctx, msg.Chat.ID, msgID,
			fmt.Sprintf("👍 <b>Download added.</b>\nGID: <code>%s</code>", gid), ControlKeyboard(gid))
	} else {
		a.edit(ctx, msg.Chat.ID, msgID, format.TaskDetail(snap), ControlKeyboard(gid))
	}
	a.monitor.Register(msg.Chat.ID, msgID, gid)
}

func (a *App) cmdStatus(ctx context.Context, msg *telegram.Message, args string) {
	if args != "" {
		a.statusDetail(ctx, msg, args)
		return
	}

	active, err := a.engine.TellActive(ctx)
	if err != nil {
		a.reply(ctx, msg.Chat.ID, "❌ <b>Status query failed:</b> "+format.EscapeHTML(err.Error()))
		return
	}
	waiting, err := a.engine.TellWaiting(ctx, 0, 0)
	if err != nil {
		a.reply(ctx, msg.Chat.ID, "❌ <b>Status query failed:</b> "+format.EscapeHTML(err.Error()))
		return
	}
	tasks := append(active, waiting...)
	if len(tasks) == 0 {
		a.reply(ctx, msg.Chat.ID, "📭 <b>No active or waiting tasks.</b>")
		return
	}

	totalPages := format.TotalPages(len(tasks), a.perPage)
	a.pages.Put(pagestate.ViewStatus, msg.From.ID, pagestate.Cursor{
		Page: 1, TotalPages: totalPages, Snapshot: tasks,
	})
	text := statusPageText(tasks, 1, a.perPage)
	a.tg.SendMessage(ctx, msg.Chat.ID, text, paginationKeyboard(1, totalPages, actionStatusPage))
}

func (a *App) statusDetail(ctx context.Context, msg *telegram.Message, gid string) {
	if !format.ValidGID(gid) {
		a.reply(ctx, msg.Chat.ID,
			"⚠️ <b>Error:</b> invalid GID, expected 16 hex characters")
		return
	}
	snap, err := a.engine.TellStatus(ctx, gid)
	switch {
	case errors.Is(err, aria2.ErrTaskNotFound):
		rec, herr := a.store.GetByGID(ctx, gid)
		if herr == nil && rec != nil {
			a.reply(ctx, msg.Chat.ID, fmt.Sprintf(
				"📜 <b>History record</b>\n\n<b>Name:</b> %s\n<b>Status:</b> %s\n<b>Finished:</b> %s\n<b>Size:</b> %s\n<b>GID:</b> <code>%s</code>",
				format.EscapeHTML(rec.Name), format.StatusWord(rec.Status),
				rec.Timestamp.Format("2006-01-02 15:04:05"), format.Size(rec.Size), rec.GID))
			return
		}
		a.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"❓ No task with GID <code>%s</code> in the engine or the history.", gid))
	case err != nil:
		a.reply(ctx, msg.Chat.ID, "❌ <b>Status query failed:</b> "+format.EscapeHTML(err.Error()))
	default:
		msgID, ok := a.tgSend(ctx, msg.Chat.ID, format.TaskDetail(snap), ControlKeyboard(gid))
		if ok && !snap.Terminal() {
			a.monitor.Register(msg.Chat.ID, msgID, gid)
		}
	}
}

func (a *App) tgSend(ctx context.Context, chatID int64, html string, kb *telegram.InlineKeyboardMarkup) (int64, bool) {
	id, err := a.tg.SendMessage(ctx, chatID, html, kb)
	if err != nil {
		a.logger.Warn("send failed", "chat", chatID, "error", err)
		return 0, false
	}
	return id, true
}

func (a *App) cmdPause(ctx context.Context, msg *telegram.Message, args string) {
	a.taskCommand(ctx, msg, args, "pause", a.engine.Pause,
		"⏸ <b>Task paused.</b>\nGID: <code>%s</code>")
}

func (a *App) cmdUnpause(ctx context.Context, msg *telegram.Message, args string) {
	a.taskCommand(ctx, msg, args, "unpause", a.engine.Unpause,
		"▶️ <b>Task resumed.</b>\nGID: <code>%s</code>")
}

// taskCommand is the shared gid-validated single-task engine call.
func (a *App) taskCommand(ctx context.Context, msg *telegram.Message, gid, name string,
	call func(context.Context, string) error, okText string) {
	if gid == "" {
		a.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"⚠️ <b>Error:</b> missing GID\nUsage: <code>/%s gid</code>", name))
		return
	}
	if !format.ValidGID(gid) {
		a.reply(ctx, msg.Chat.ID, "⚠️ <b>Error:</b> invalid GID, expected 16 hex characters")
		return
	}
	if err := call(ctx, gid); err != nil {
		if errors.Is(err, aria2.ErrTaskNotFound) {
			a.reply(ctx, msg.Chat.ID, fmt.Sprintf("❓ No task with GID <code>%s</code>.", gid))
			return
		}
		a.reply(ctx, msg.Chat.ID, fmt.Sprintf("❌ <b>%s failed:</b> %s", name, format.EscapeHTML(err.Error())))
		return
	}
	a.reply(ctx, msg.Chat.ID, fmt.Sprintf(okText, gid))
}

func (a *App) cmdRemove(ctx context.Context, msg *telegram.Message, args string) {
	if args == "" {
		a.reply(ctx, msg.Chat.ID, "⚠️ <b>Error:</b> missing GID\nUsage: <code>/remove gid</code>")
		return
	}
	gid := args
	if !format.ValidGID(gid) {
		a.reply(ctx, msg.Chat.ID, "⚠️ <b>Error:</b> invalid GID, expected 16 hex characters")
		return
	}

	if err := a.removeTask(ctx, gid); err != nil {
		if errors.Is(err, aria2.ErrTaskNotFound) {
			a.reply(ctx, msg.Chat.ID, fmt.Sprintf("ℹ️ Task <code>%s</code> is already gone.", gid))
			return
		}
		a.reply(ctx, msg.Chat.ID, "❌ <b>Removing the task failed:</b> "+format.EscapeHTML(err.Error()))
		return
	}
	a.reply(ctx, msg.Chat.ID, removedText(gid))
}

// removeTask deletes gid on the engine, records the removal with the last
// known size and files, and finalizes every tracked detail message for it.
func (a *App) removeTask(ctx context.Context, gid string) error {
	snap, statErr := a.engine.TellStatus(ctx, gid)

	if err := a.engine.Remove(ctx, gid); err != nil {
		return err
	}

	rec := history.Record{GID: gid, Name: gid, Status: history.StatusRemoved, Timestamp: a.now()}
	if statErr == nil {
		rec.Name = snap.Name
		rec.Size = snap.TotalLength
		rec.Files = filesBlob(snap)
	}
	if _, err := a.store.Upsert(ctx, rec); err != nil {
		a.logger.Error("record removal failed", "gid", gid, "error", err)
	}
	a.monitor.FinalizeGID(ctx, gid, removedText(gid))
	return nil
}

func removedText(gid string) string {
	return fmt.Sprintf("🗑 <b>Task removed.</b>\nGID: <code>%s</code>", gid)
}

func (a *App) cmdPauseAll(ctx context.Context, msg *telegram.Message, _ string) {
	if err := a.engine.PauseAll(ctx); err != nil {
		a.reply(ctx, msg.Chat.ID, "❌ <b>Pausing all tasks failed:</b> "+format.EscapeHTML(err.Error()))
		return
	}
	a.reply(ctx, msg.Chat.ID, "⏸ <b>All tasks paused.</b>")
}

func (a *App) cmdUnpauseAll(ctx context.Context, msg *telegram.Message, _ string) {
	if err := a.engine.UnpauseAll(ctx); err != nil {
		a.reply(ctx, msg.Chat.ID, "❌ <b>Resuming all tasks failed:</b> "+format.EscapeHTML(err.Error()))
		return
	}
	a.reply(ctx, msg.Chat.ID, "▶️ <b>All tasks resumed.</b>")
}

func (a *App) cmdHistory(ctx context.Context, msg *telegram.Message, _ string) {
	recs, total, err := a.store.List(ctx, 1, a.perPage, "")
	if err != nil {
		a.reply(ctx, msg.Chat.ID, "❌ <b>Loading history failed:</b> "+format.EscapeHTML(err.Error()))
		return
	}
	if total == 0 {
		a.reply(ctx, msg.Chat.ID, "📭 <b>No download history.</b>")
		return
	}
	totalPages := format.TotalPages(total, a.perPage)
	a.pages.Put(pagestate.ViewHistory, msg.From.ID, pagestate.Cursor{Page: 1, TotalPages: totalPages})
	text := fmt.Sprintf("📜 <b>Download history</b> (%d records, page 1/%d)\n\n%s",
		total, totalPages, format.HistoryList(recs))
	a.tg.SendMessage(ctx, msg.Chat.ID, text, paginationKeyboard(1, totalPages, actionHistoryPage))
}

func (a *App) cmdSearchHistory(ctx context.Context, msg *telegram.Message, args string) {
	if args == "" {
		a.reply(ctx, msg.Chat.ID,
			"⚠️ <b>Error:</b> missing keyword\nUsage: <code>/searchhistory keyword</code>")
		return
	}
	recs, total, err := a.store.Search(ctx, args, 1, a.perPage)
	if err != nil {
		a.reply(ctx, msg.Chat.ID, "❌ <b>Search failed:</b> "+format.EscapeHTML(err.Error()))
		return
	}
	if total == 0 {
		a.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"🔍 <b>No matches</b> for <b>%s</b> in the history.", format.EscapeHTML(args)))
		return
	}
	totalPages := format.TotalPages(total, a.perPage)
	a.pages.Put(pagestate.ViewSearch, msg.From.ID, pagestate.Cursor{
		Page: 1, TotalPages: totalPages, Keyword: args,
	})
	text := fmt.Sprintf("🔍 <b>Search:</b> %s (%d matches, page 1/%d)\n\n%s",
		format.EscapeHTML(args), total, totalPages, format.HistoryList(recs))
	a.tg.SendMessage(ctx, msg.Chat.ID, text, paginationKeyboard(1, totalPages, actionSearchPage))
}

func (a *App) cmdGlobalStatus(ctx context.Context, msg *telegram.Message, _ string) {
	gs, err := a.engine.GlobalStat(ctx)
	if err != nil {
		a.reply(ctx, msg.Chat.ID, "❌ <b>Engine status query failed:</b> "+format.EscapeHTML(err.Error()))
		return
	}
	a.reply(ctx, msg.Chat.ID, format.GlobalStatus(gs))
}

func (a *App) cmdClearHistory(ctx context.Context, msg *telegram.Message, _ string) {
	a.pendingMu.Lock()
	a.pendingClear[msg.From.ID] = a.now().Add(clearConfirmWindow)
	a.pendingMu.Unlock()

	a.tg.SendMessage(ctx, msg.Chat.ID,
		"🤔 <b>Clear history?</b>\n\nThis deletes every history record and cannot be undone.",
		confirmClearKeyboard())
}

func (a *App) cmdCancel(ctx context.Context, msg *telegram.Message, _ string) {
	a.pendingMu.Lock()
	_, pending := a.pendingClear[msg.From.ID]
	delete(a.pendingClear, msg.From.ID)
	a.pendingMu.Unlock()

	if pending {
		a.reply(ctx, msg.Chat.ID, "👌 Cancelled.")
	} else {
		a.reply(ctx, msg.Chat.ID, "Nothing to cancel.")
	}
}

// clearPending consumes the user's pending confirmation, reporting whether
// one was still valid.
func (a *App) clearPending(userID int64) bool {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	expiry, ok := a.pendingClear[userID]
	delete(a.pendingClear, userID)
	return ok && a.now().Before(expiry)
}

func filesBlob(snap aria2.Snapshot) json.RawMessage {
	if len(snap.Files) == 0 {
		return nil
	}
	b, err := json.Marshal(snap.Files)
	if err != nil {
		return nil
	}
	return b
}

// statusPageText renders one page of the cached status listing.
func statusPageText(tasks []aria2.Snapshot, page, perPage int) string {
	totalPages := format.TotalPages(len(tasks), perPage)
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > len(tasks) {
		end = len(tasks)
	}
	return fmt.Sprintf("📋 <b>Download tasks</b> (%d total, page %d/%d)\n\n%s",
		len(tasks), page, totalPages, format.TaskList(tasks[start:end]))
}
