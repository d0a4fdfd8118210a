package aria2

import "testing"

func TestProgressClampsAndHandlesZeroTotal(t *testing.T) {
	cases := []struct {
		name      string
		total     int64
		completed int64
		want      float64
	}{
		{"zero total", 0, 0, 0},
		{"half", 200, 100, 50},
		{"complete", 100, 100, 100},
		{"over-reported", 100, 150, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Snapshot{TotalLength: tc.total, CompletedLength: tc.completed}
			if got := s.Progress(); got != tc.want {
				t.Errorf("Progress() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestETAZeroWhenIdleOrDone(t *testing.T) {
	done := Snapshot{TotalLength: 100, CompletedLength: 100, DownloadSpeed: 10}
	if done.ETASeconds() != 0 {
		t.Error("complete task should report zero ETA")
	}
	stalled := Snapshot{TotalLength: 100, CompletedLength: 10, DownloadSpeed: 0}
	if stalled.ETASeconds() != 0 {
		t.Error("stalled task should report zero ETA")
	}
}

func TestTerminalStates(t *testing.T) {
	for _, st := range []string{StatusComplete, StatusError, StatusRemoved} {
		if !(Snapshot{Status: st}).Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
	for _, st := range []string{StatusActive, StatusWaiting, StatusPaused} {
		if (Snapshot{Status: st}).Terminal() {
			t.Errorf("%s should not be terminal", st)
		}
	}
}

func TestDisplayNamePrefersTorrentInfo(t *testing.T) {
	raw := rawStatus{GID: "0123456789abcdef"}
	if got := raw.displayName(); got != "0123456789abcdef" {
		t.Errorf("expected gid fallback, got %q", got)
	}
	raw.Files = []struct {
		Path string `json:"path"`
	}{{Path: "/dl/show/episode.mkv"}}
	if got := raw.displayName(); got != "episode.mkv" {
		t.Errorf("expected file basename, got %q", got)
	}
	raw.Bittorrent = &struct {
		Info struct {
			Name string `json:"name"`
		} `json:"info"`
	}{}
	raw.Bittorrent.Info.Name = "Show Season 1"
	if got := raw.displayName(); got != "Show Season 1" {
		t.Errorf("expected torrent name, got %q", got)
	}
}
