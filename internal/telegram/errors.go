package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError is a Telegram Bot API error envelope (ok=false).
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration // from parameters.retry_after on 429s
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: API error %d: %s", e.Code, e.Description)
}

// IsRetryAfter reports whether err is a flood-control rejection and, if so,
// how long Telegram asked us to wait.
func IsRetryAfter(err error) (time.Duration, bool) {
	var ae *APIError
	if errors.As(err, &ae) && ae.RetryAfter > 0 {
		return ae.RetryAfter, true
	}
	return 0, false
}

// IsNotModified reports whether err is the harmless "message is not
// modified" rejection from editMessageText.
func IsNotModified(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) &&
		strings.Contains(ae.Description, "message is not modified")
}

// IsMessageGone reports whether the target message or chat no longer
// accepts edits: deleted message, blocked bot, or vanished chat.
func IsMessageGone(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch {
	case strings.Contains(ae.Description, "message to edit not found"),
		strings.Contains(ae.Description, "bot was blocked"),
		strings.Contains(ae.Description, "chat not found"):
		return true
	}
	return false
}
