// Package format renders task, history, and engine state as Telegram HTML.
// Everything here is pure string work; callers own escaping of nothing —
// all user-controlled text passes through EscapeHTML before output.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
	"github.com/dnslin/aria2-tg-bot/internal/history"
)

var gidPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// ValidGID reports whether s looks like an aria2 GID (16 lowercase hex chars).
func ValidGID(s string) bool {
	return gidPattern.MatchString(s)
}

// EscapeHTML escapes &, <, > for Telegram HTML parse mode.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// Size renders a byte count with a binary-ish unit, two decimals above KB.
func Size(n int64) string {
	switch {
	case n < 0:
		return "unknown"
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/(1024*1024*1024))
	}
}

// Speed renders bytes per second.
func Speed(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return Size(n) + "/s"
}

// ETA renders a remaining-seconds estimate. Estimates beyond a year are
// treated as unknown.
func ETA(seconds int64) string {
	if seconds < 0 || seconds > 365*24*3600 {
		return "unknown"
	}
	d := time.Duration(seconds) * time.Second
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// ProgressBar renders a 10-cell bar plus the percentage, e.g. "■■■□□□□□□□ 32.5%".
func ProgressBar(percent float64) string {
	if percent < 0 || percent > 100 {
		percent = 0
	}
	done := int(percent / 10)
	return strings.Repeat("■", done) + strings.Repeat("□", 10-done) +
		fmt.Sprintf(" %.1f%%", percent)
}

// TruncateName shortens a name to max runes with a middle ellipsis.
func TruncateName(name string, max int) string {
	r := []rune(name)
	if len(r) <= max {
		return name
	}
	half := (max - 3) / 2
	return string(r[:half]) + "..." + string(r[len(r)-half:])
}

var statusWords = map[string]string{
	aria2.StatusActive:   "downloading",
	aria2.StatusWaiting:  "waiting",
	aria2.StatusPaused:   "paused",
	aria2.StatusComplete: "completed",
	aria2.StatusError:    "failed",
	aria2.StatusRemoved:  "removed",
	"completed":          "completed",
}

// StatusWord maps an engine or history status to its display word.
// Unknown statuses pass through unchanged.
func StatusWord(status string) string {
	if w, ok := statusWords[status]; ok {
		return w
	}
	return status
}

// TaskDetail renders one task's full view. Terminal tasks always carry their
// status word; at most five files are listed.
func TaskDetail(s aria2.Snapshot) string {
	lines := []string{
		fmt.Sprintf("<b>Name:</b> %s", EscapeHTML(s.Name)),
		fmt.Sprintf("<b>Status:</b> %s", StatusWord(s.Status)),
		fmt.Sprintf("<b>Size:</b> %s", Size(s.TotalLength)),
	}
	if p := s.Progress(); p > 0 {
		lines = append(lines, fmt.Sprintf("<b>Progress:</b> %s", ProgressBar(p)))
	}
	if s.DownloadSpeed > 0 {
		lines = append(lines, fmt.Sprintf("<b>Speed:</b> %s", Speed(s.DownloadSpeed)))
	}
	if s.UploadSpeed > 0 {
		lines = append(lines, fmt.Sprintf("<b>Upload:</b> %s", Speed(s.UploadSpeed)))
	}
	if eta := s.ETASeconds(); eta > 0 && s.Status == aria2.StatusActive {
		lines = append(lines, fmt.Sprintf("<b>ETA:</b> %s", ETA(eta)))
	}
	if s.ErrorMessage != "" {
		lines = append(lines, fmt.Sprintf("<b>Error:</b> %s", EscapeHTML(s.ErrorMessage)))
	}
	if len(s.Files) > 0 {
		lines = append(lines, "<b>Files:</b>")
		for i, f := range s.Files {
			if i == 5 {
				lines = append(lines, fmt.Sprintf("... %d files total", len(s.Files)))
				break
			}
			lines = append(lines, "- "+EscapeHTML(TruncateName(f.Name, 30)))
		}
	}
	lines = append(lines, fmt.Sprintf("<b>GID:</b> <code>%s</code>", s.GID))
	return strings.Join(lines, "\n")
}

// TaskList renders a numbered one-line-per-task listing.
func TaskList(tasks []aria2.Snapshot) string {
	if len(tasks) == 0 {
		return "No tasks."
	}
	var b strings.Builder
	for i, s := range tasks {
		fmt.Fprintf(&b, "%d. <b>%s</b> [<code>%s</code>] (%s) %.1f%%\n",
			i+1, EscapeHTML(TruncateName(s.Name, 30)), s.GID, StatusWord(s.Status), s.Progress())
	}
	return strings.TrimRight(b.String(), "\n")
}

// HistoryList renders a page of history records.
func HistoryList(records []history.Record) string {
	if len(records) == 0 {
		return "No history."
	}
	var b strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. <b>%s</b> [<code>%s</code>] (%s) - %s",
			i+1, EscapeHTML(TruncateName(rec.Name, 30)), rec.GID,
			StatusWord(rec.Status), rec.Timestamp.Format("2006-01-02 15:04"))
		if rec.Status == history.StatusError && rec.ErrorMessage != "" {
			fmt.Fprintf(&b, "\n   <i>error: %s</i>", EscapeHTML(TruncateName(rec.ErrorMessage, 50)))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// GlobalStatus renders engine-wide counters.
func GlobalStatus(gs aria2.GlobalStat) string {
	lines := []string{
		"<b>Engine status</b>",
		fmt.Sprintf("Download: %s", Speed(gs.DownloadSpeed)),
		fmt.Sprintf("Upload: %s", Speed(gs.UploadSpeed)),
		fmt.Sprintf("Active: %d / Waiting: %d / Stopped: %d", gs.NumActive, gs.NumWaiting, gs.NumStopped),
	}
	if gs.Version != "" {
		lines = append(lines, fmt.Sprintf("aria2 %s", gs.Version))
	}
	return strings.Join(lines, "\n")
}

// Notification renders a terminal-outcome push message for one record.
func Notification(rec history.Record) string {
	var head string
	if rec.Status == history.StatusCompleted {
		head = "✅ <b>Download completed</b>"
	} else {
		head = "❌ <b>Download failed</b>"
	}
	lines := []string{
		head,
		fmt.Sprintf("<b>Name:</b> %s", EscapeHTML(rec.Name)),
		fmt.Sprintf("<b>Size:</b> %s", Size(rec.Size)),
		fmt.Sprintf("<b>Time:</b> %s", rec.Timestamp.Format("2006-01-02 15:04:05")),
		fmt.Sprintf("<b>GID:</b> <code>%s</code>", rec.GID),
	}
	if rec.ErrorMessage != "" {
		lines = append(lines, fmt.Sprintf("<b>Error:</b> %s", EscapeHTML(rec.ErrorMessage)))
	}
	return strings.Join(lines, "\n")
}

// TotalPages returns the page count for total items at perPage each,
// never less than 1.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		return 1
	}
	return pages
}
