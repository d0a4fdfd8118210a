package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
	"github.com/dnslin/aria2-tg-bot/internal/format"
	"github.com/dnslin/aria2-tg-bot/internal/pagestate"
	"github.com/dnslin/aria2-tg-bot/internal/telegram"
)

// handleCallback routes a button press. Every callback is answered exactly
// once, authorized or not.
func (a *App) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	action, value := parseCallback(cb.Data)
	a.logger.Info("callback received", "user", cb.From.ID, "action", action)

	if !a.authorized[cb.From.ID] {
		a.logger.Warn("unauthorized callback", "user", cb.From.ID, "action", action)
		a.answer(ctx, cb.ID, "⛔ Not authorized.", true)
		return
	}
	if cb.Message == nil {
		a.answer(ctx, cb.ID, "", false)
		return
	}
	chatID, msgID := cb.Message.Chat.ID, cb.Message.MessageID

	switch action {
	case actionPause:
		a.taskCallback(ctx, cb, value, a.engine.Pause, "Paused")
	case actionResume:
		a.taskCallback(ctx, cb, value, a.engine.Unpause, "Resumed")
	case actionRemove:
		a.removeCallback(ctx, cb, value)
	case actionHistoryPage:
		a.historyPageCallback(ctx, cb, value)
	case actionSearchPage:
		a.searchPageCallback(ctx, cb, value)
	case actionStatusPage:
		a.statusPageCallback(ctx, cb, value)
	case actionPageInfo:
		a.answer(ctx, cb.ID, "", false)
	case actionClearOK:
		a.clearConfirmCallback(ctx, cb)
	case actionClearCancel:
		a.answer(ctx, cb.ID, "Cancelled", false)
		a.clearPending(cb.From.ID)
		a.edit(ctx, chatID, msgID, "👌 History untouched.", nil)
	default:
		a.logger.Warn("unknown callback action", "action", action)
		a.answer(ctx, cb.ID, "Unknown action", false)
	}
}

// taskCallback pauses or resumes the task behind a detail-view button and
// re-renders the message in place. The monitor entry stays registered.
func (a *App) taskCallback(ctx context.Context, cb *telegram.CallbackQuery, gid string,
	call func(context.Context, string) error, done string) {
	if !format.ValidGID(gid) {
		a.answer(ctx, cb.ID, "Bad task id", true)
		return
	}
	if err := call(ctx, gid); err != nil {
		a.logger.Warn("callback engine call failed", "gid", gid, "error", err)
		a.answer(ctx, cb.ID, "Engine call failed", true)
		return
	}
	a.answer(ctx, cb.ID, done, false)

	if snap, err := a.engine.TellStatus(ctx, gid); err == nil {
		a.edit(ctx, cb.Message.Chat.ID, cb.Message.MessageID, format.TaskDetail(snap), ControlKeyboard(gid))
	}
}

// removeCallback removes the task behind a detail-view button, finalizes
// the message, and records the removal.
func (a *App) removeCallback(ctx context.Context, cb *telegram.CallbackQuery, gid string) {
	if !format.ValidGID(gid) {
		a.answer(ctx, cb.ID, "Bad task id", true)
		return
	}
	if err := a.removeTask(ctx, gid); err != nil && !errors.Is(err, aria2.ErrTaskNotFound) {
		a.logger.Warn("callback remove failed", "gid", gid, "error", err)
		a.answer(ctx, cb.ID, "Remove failed", true)
		return
	}
	a.answer(ctx, cb.ID, "Removed", false)
	// The pressed message may not be tracked by the monitor (e.g. a detail
	// view opened after a restart), so finalize it directly too.
	a.edit(ctx, cb.Message.Chat.ID, cb.Message.MessageID, removedText(gid), nil)
}

func (a *App) historyPageCallback(ctx context.Context, cb *telegram.CallbackQuery, value string) {
	page, ok := parsePage(value)
	if !ok {
		a.answer(ctx, cb.ID, "Bad page", false)
		return
	}
	recs, total, err := a.store.List(ctx, page, a.perPage, "")
	if err != nil {
		a.answer(ctx, cb.ID, "History unavailable", true)
		return
	}
	totalPages := format.TotalPages(total, a.perPage)
	if page > totalPages {
		// A stale button past the shrunken last page: show that page
		// instead of an empty listing.
		page = totalPages
		recs, total, err = a.store.List(ctx, page, a.perPage, "")
		if err != nil {
			a.answer(ctx, cb.ID, "History unavailable", true)
			return
		}
		totalPages = format.TotalPages(total, a.perPage)
	}
	a.answer(ctx, cb.ID, "", false)

	// Fresh cursor regardless of whether one survived the restart.
	a.pages.Put(pagestate.ViewHistory, cb.From.ID, pagestate.Cursor{Page: page, TotalPages: totalPages})
	text := fmt.Sprintf("📜 <b>Download history</b> (%d records, page %d/%d)\n\n%s",
		total, page, totalPages, format.HistoryList(recs))
	a.edit(ctx, cb.Message.Chat.ID, cb.Message.MessageID, text,
		paginationKeyboard(page, totalPages, actionHistoryPage))
}

func (a *App) searchPageCallback(ctx context.Context, cb *telegram.CallbackQuery, value string) {
	page, ok := parsePage(value)
	if !ok {
		a.answer(ctx, cb.ID, "Bad page", false)
		return
	}
	cursor, found := a.pages.Get(pagestate.ViewSearch, cb.From.ID)
	if !found || cursor.Keyword == "" {
		// The keyword lived only in the cursor; without it there is
		// nothing to re-query.
		a.answer(ctx, cb.ID, "Search expired, run /searchhistory again", true)
		return
	}
	recs, total, err := a.store.Search(ctx, cursor.Keyword, page, a.perPage)
	if err != nil {
		a.answer(ctx, cb.ID, "Search unavailable", true)
		return
	}
	totalPages := format.TotalPages(total, a.perPage)
	if page > totalPages {
		page = totalPages
		recs, total, err = a.store.Search(ctx, cursor.Keyword, page, a.perPage)
		if err != nil {
			a.answer(ctx, cb.ID, "Search unavailable", true)
			return
		}
		totalPages = format.TotalPages(total, a.perPage)
	}
	a.answer(ctx, cb.ID, "", false)

	a.pages.Put(pagestate.ViewSearch, cb.From.ID, pagestate.Cursor{
		Page: page, TotalPages: totalPages, Keyword: cursor.Keyword,
	})
	text := fmt.Sprintf("🔍 <b>Search:</b> %s (%d matches, page %d/%d)\n\n%s",
		format.EscapeHTML(cursor.Keyword), total, page, totalPages, format.HistoryList(recs))
	a.edit(ctx, cb.Message.Chat.ID, cb.Message.MessageID, text,
		paginationKeyboard(page, totalPages, actionSearchPage))
}

func (a *App) statusPageCallback(ctx context.Context, cb *telegram.CallbackQuery, value string) {
	page, ok := parsePage(value)
	if !ok {
		a.answer(ctx, cb.ID, "Bad page", false)
		return
	}

	cursor, found := a.pages.Get(pagestate.ViewStatus, cb.From.ID)
	tasks := cursor.Snapshot
	if !found || len(tasks) == 0 {
		// Cursor gone (restart or expiry): re-materialize from the engine.
		active, err := a.engine.TellActive(ctx)
		if err != nil {
			a.answer(ctx, cb.ID, "Engine unavailable", true)
			return
		}
		waiting, err := a.engine.TellWaiting(ctx, 0, 0)
		if err != nil {
			a.answer(ctx, cb.ID, "Engine unavailable", true)
			return
		}
		tasks = append(active, waiting...)
	}
	a.answer(ctx, cb.ID, "", false)

	if len(tasks) == 0 {
		a.edit(ctx, cb.Message.Chat.ID, cb.Message.MessageID, "📭 <b>No active or waiting tasks.</b>", nil)
		return
	}
	totalPages := format.TotalPages(len(tasks), a.perPage)
	if page > totalPages {
		page = totalPages
	}
	a.pages.Put(pagestate.ViewStatus, cb.From.ID, pagestate.Cursor{
		Page: page, TotalPages: totalPages, Snapshot: tasks,
	})
	a.edit(ctx, cb.Message.Chat.ID, cb.Message.MessageID,
		statusPageText(tasks, page, a.perPage), paginationKeyboard(page, totalPages, actionStatusPage))
}

// clearConfirmCallback wipes the history if the confirmation is still open.
func (a *App) clearConfirmCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if !a.clearPending(cb.From.ID) {
		a.answer(ctx, cb.ID, "Confirmation expired, run /clearhistory again", true)
		return
	}
	deleted, err := a.store.Clear(ctx)
	if err != nil {
		a.answer(ctx, cb.ID, "Clearing failed", true)
		return
	}
	a.answer(ctx, cb.ID, "History cleared", false)
	a.pages.DropAll(cb.From.ID)
	a.edit(ctx, cb.Message.Chat.ID, cb.Message.MessageID,
		fmt.Sprintf("🧹 <b>History cleared.</b> %d records deleted.", deleted), nil)
}

func (a *App) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := a.tg.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		a.logger.Warn("answer callback failed", "error", err)
	}
}

func parsePage(value string) (int, bool) {
	page, err := strconv.Atoi(value)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}
