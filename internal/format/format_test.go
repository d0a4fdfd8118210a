package format

import (
	"strings"
	"testing"
	"time"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
	"github.com/dnslin/aria2-tg-bot/internal/history"
)

func TestValidGID(t *testing.T) {
	cases := map[string]bool{
		"2089b05ecca3d829": true,
		"2089B05ECCA3D829": false,
		"2089b05ecca3d82":  false,
		"2089b05ecca3d8290": false,
		"not-a-gid":        false,
		"":                 false,
	}
	for in, want := range cases {
		if got := ValidGID(in); got != want {
			t.Errorf("ValidGID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{-1, "unknown"},
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tc := range cases {
		if got := Size(tc.in); got != tc.want {
			t.Errorf("Size(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestETA(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{45, "45s"},
		{90, "1m 30s"},
		{3700, "1h 1m"},
		{90000, "1d 1h"},
		{-1, "unknown"},
		{366 * 24 * 3600, "unknown"},
	}
	for _, tc := range cases {
		if got := ETA(tc.in); got != tc.want {
			t.Errorf("ETA(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	if got := ProgressBar(32.5); got != "■■■□□□□□□□ 32.5%" {
		t.Errorf("ProgressBar(32.5) = %q", got)
	}
	if got := ProgressBar(100); got != "■■■■■■■■■■ 100.0%" {
		t.Errorf("ProgressBar(100) = %q", got)
	}
	if got := ProgressBar(-5); got != "□□□□□□□□□□ 0.0%" {
		t.Errorf("out-of-range should render as zero, got %q", got)
	}
}

func TestTruncateNameMiddleEllipsis(t *testing.T) {
	if got := TruncateName("short.iso", 30); got != "short.iso" {
		t.Errorf("short name changed: %q", got)
	}
	long := "a-very-long-download-file-name-for-testing.tar.gz"
	got := TruncateName(long, 30)
	if len([]rune(got)) > 30 {
		t.Errorf("truncated name too long: %q", got)
	}
	if !strings.Contains(got, "...") {
		t.Errorf("expected middle ellipsis: %q", got)
	}
}

func TestEscapeHTML(t *testing.T) {
	if got := EscapeHTML(`<b>&"`); got != `&lt;b&gt;&amp;"` {
		t.Errorf("EscapeHTML = %q", got)
	}
}

func TestTaskDetailEscapesNameAndMarksTerminal(t *testing.T) {
	s := aria2.Snapshot{
		GID:          "2089b05ecca3d829",
		Status:       aria2.StatusError,
		Name:         "evil<script>.iso",
		TotalLength:  100,
		ErrorMessage: "mirror <down>",
	}
	out := TaskDetail(s)
	if strings.Contains(out, "<script>") {
		t.Error("name not escaped")
	}
	if !strings.Contains(out, "failed") {
		t.Error("terminal status word missing")
	}
	if !strings.Contains(out, "mirror &lt;down&gt;") {
		t.Error("error message not escaped")
	}
	if !strings.Contains(out, "<code>2089b05ecca3d829</code>") {
		t.Error("gid missing")
	}
}

func TestTaskDetailCapsFileListing(t *testing.T) {
	s := aria2.Snapshot{GID: "2089b05ecca3d829", Status: aria2.StatusActive, Name: "season"}
	for i := 0; i < 8; i++ {
		s.Files = append(s.Files, aria2.File{Name: "episode.mkv"})
	}
	out := TaskDetail(s)
	if strings.Count(out, "- episode.mkv") != 5 {
		t.Errorf("expected 5 listed files:\n%s", out)
	}
	if !strings.Contains(out, "8 files total") {
		t.Errorf("expected overflow marker:\n%s", out)
	}
}

func TestTaskListEmpty(t *testing.T) {
	if got := TaskList(nil); got != "No tasks." {
		t.Errorf("TaskList(nil) = %q", got)
	}
}

func TestHistoryListShowsErrors(t *testing.T) {
	recs := []history.Record{
		{GID: "2089b05ecca3d829", Name: "a.iso", Status: history.StatusCompleted,
			Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
		{GID: "2089b05ecca3d82a", Name: "b.iso", Status: history.StatusError,
			ErrorMessage: "checksum mismatch",
			Timestamp:    time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)},
	}
	out := HistoryList(recs)
	if !strings.Contains(out, "2026-08-01 12:00") {
		t.Errorf("timestamp missing:\n%s", out)
	}
	if !strings.Contains(out, "checksum mismatch") {
		t.Errorf("error detail missing:\n%s", out)
	}
}

func TestNotificationCompletedVsFailed(t *testing.T) {
	done := Notification(history.Record{GID: "2089b05ecca3d829", Name: "a.iso",
		Status: history.StatusCompleted, Size: 1024, Timestamp: time.Now()})
	if !strings.Contains(done, "completed") {
		t.Errorf("completed notification wrong:\n%s", done)
	}
	failed := Notification(history.Record{GID: "2089b05ecca3d82a", Name: "b.iso",
		Status: history.StatusError, ErrorMessage: "disk full", Timestamp: time.Now()})
	if !strings.Contains(failed, "failed") || !strings.Contains(failed, "disk full") {
		t.Errorf("failed notification wrong:\n%s", failed)
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, per, want int }{
		{0, 5, 1},
		{1, 5, 1},
		{5, 5, 1},
		{6, 5, 2},
		{11, 5, 3},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.per); got != tc.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tc.total, tc.per, got, tc.want)
		}
	}
}
