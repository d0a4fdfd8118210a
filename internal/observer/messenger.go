package observer

import (
	"context"

	"github.com/dnslin/aria2-tg-bot/internal/telegram"
)

// Messenger wraps a telegram client's edit path and counts every tracking-
// message edit the monitor issues.
type Messenger struct {
	inner *telegram.Client
	inst  *Instruments
}

// WrapMessenger instruments message edits.
func WrapMessenger(inner *telegram.Client, inst *Instruments) *Messenger {
	return &Messenger{inner: inner, inst: inst}
}

func (m *Messenger) EditMessage(ctx context.Context, chatID, messageID int64, html string, keyboard *telegram.InlineKeyboardMarkup) error {
	m.inst.MessageEdits.Add(ctx, 1)
	return m.inner.EditMessage(ctx, chatID, messageID, html, keyboard)
}
