package bot

import (
	"fmt"
	"strings"

	"github.com/dnslin/aria2-tg-bot/internal/telegram"
)

// Callback actions. Data on the wire is "action:value" where value is a gid
// or a 1-based page number, or empty for page_info.
const (
	actionPause       = "pause"
	actionResume      = "resume"
	actionRemove      = "remove"
	actionHistoryPage = "history_page"
	actionSearchPage  = "search_page"
	actionStatusPage  = "status_page"
	actionPageInfo    = "page_info"
	actionClearOK     = "clear_history_confirm"
	actionClearCancel = "clear_history_cancel"
)

// parseCallback splits callback data into action and value.
func parseCallback(data string) (action, value string) {
	action, value, _ = strings.Cut(data, ":")
	return action, value
}

// callbackData re-serializes an action/value pair.
func callbackData(action, value string) string {
	if value == "" {
		return action
	}
	return action + ":" + value
}

// ControlKeyboard is the pause/resume/remove row under a task detail view.
// Exported so the monitor can re-attach it on live updates.
func ControlKeyboard(gid string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		{Text: "⏸ Pause", CallbackData: callbackData(actionPause, gid)},
		{Text: "▶️ Resume", CallbackData: callbackData(actionResume, gid)},
		{Text: "❌ Remove", CallbackData: callbackData(actionRemove, gid)},
	}}}
}

// paginationKeyboard builds the pager row for a listing view.
// prefix is one of the *_page actions.
func paginationKeyboard(page, totalPages int, prefix string) *telegram.InlineKeyboardMarkup {
	if totalPages <= 1 {
		return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: fmt.Sprintf("Page %d/%d", page, totalPages), CallbackData: actionPageInfo},
		}}}
	}
	var row []telegram.InlineKeyboardButton
	if page > 2 {
		row = append(row, telegram.InlineKeyboardButton{
			Text: "« First", CallbackData: callbackData(prefix, "1")})
	}
	if page > 1 {
		row = append(row, telegram.InlineKeyboardButton{
			Text: "< Prev", CallbackData: callbackData(prefix, fmt.Sprint(page-1))})
	}
	row = append(row, telegram.InlineKeyboardButton{
		Text: fmt.Sprintf("%d/%d", page, totalPages), CallbackData: actionPageInfo})
	if page < totalPages {
		row = append(row, telegram.InlineKeyboardButton{
			Text: "Next >", CallbackData: callbackData(prefix, fmt.Sprint(page+1))})
	}
	if page < totalPages-1 {
		row = append(row, telegram.InlineKeyboardButton{
			Text: "Last »", CallbackData: callbackData(prefix, fmt.Sprint(totalPages))})
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}}
}

// confirmClearKeyboard asks for the clear-history confirmation.
func confirmClearKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		{Text: "✅ Yes, clear it", CallbackData: actionClearOK},
		{Text: "❌ No, keep it", CallbackData: actionClearCancel},
	}}}
}
