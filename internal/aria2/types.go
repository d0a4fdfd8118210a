package aria2

import (
	"path"
	"strconv"
)

// Task statuses reported by aria2.
const (
	StatusActive   = "active"
	StatusWaiting  = "waiting"
	StatusPaused   = "paused"
	StatusComplete = "complete"
	StatusError    = "error"
	StatusRemoved  = "removed"
)

// File is one file inside a download.
type File struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Snapshot is a point-in-time view of one download task.
type Snapshot struct {
	GID             string
	Status          string
	Name            string
	TotalLength     int64
	CompletedLength int64
	DownloadSpeed   int64
	UploadSpeed     int64
	Connections     int
	ErrorCode       string
	ErrorMessage    string
	Dir             string
	Files           []File
}

// Progress returns completion as a percentage in [0, 100].
// A task with unknown total length reports 0.
func (s Snapshot) Progress() float64 {
	if s.TotalLength <= 0 {
		return 0
	}
	p := float64(s.CompletedLength) / float64(s.TotalLength) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ETASeconds estimates remaining seconds at the current download speed.
// Returns 0 when the task is complete or the speed is zero.
func (s Snapshot) ETASeconds() int64 {
	if s.DownloadSpeed <= 0 || s.CompletedLength >= s.TotalLength {
		return 0
	}
	return (s.TotalLength - s.CompletedLength) / s.DownloadSpeed
}

// Terminal reports whether the task has reached a final state.
func (s Snapshot) Terminal() bool {
	switch s.Status {
	case StatusComplete, StatusError, StatusRemoved:
		return true
	}
	return false
}

// GlobalStat is aria2's engine-wide counters plus its version string.
type GlobalStat struct {
	DownloadSpeed int64
	UploadSpeed   int64
	NumActive     int64
	NumWaiting    int64
	NumStopped    int64
	Version       string
}

// rawStatus mirrors aria2's tellStatus response, where every numeric field
// arrives as a decimal string.
type rawStatus struct {
	GID             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     string `json:"totalLength"`
	CompletedLength string `json:"completedLength"`
	DownloadSpeed   string `json:"downloadSpeed"`
	UploadSpeed     string `json:"uploadSpeed"`
	Connections     string `json:"connections"`
	ErrorCode       string `json:"errorCode"`
	ErrorMessage    string `json:"errorMessage"`
	Dir             string `json:"dir"`
	Files           []struct {
		Path string `json:"path"`
	} `json:"files"`
	Bittorrent *struct {
		Info struct {
			Name string `json:"name"`
		} `json:"info"`
	} `json:"bittorrent"`
}

type rawGlobalStat struct {
	DownloadSpeed string `json:"downloadSpeed"`
	UploadSpeed   string `json:"uploadSpeed"`
	NumActive     string `json:"numActive"`
	NumWaiting    string `json:"numWaiting"`
	NumStopped    string `json:"numStopped"`
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func (r rawStatus) snapshot() Snapshot {
	s := Snapshot{
		GID:             r.GID,
		Status:          r.Status,
		TotalLength:     atoi64(r.TotalLength),
		CompletedLength: atoi64(r.CompletedLength),
		DownloadSpeed:   atoi64(r.DownloadSpeed),
		UploadSpeed:     atoi64(r.UploadSpeed),
		Connections:     int(atoi64(r.Connections)),
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		Dir:             r.Dir,
	}
	for _, f := range r.Files {
		s.Files = append(s.Files, File{Path: f.Path, Name: path.Base(f.Path)})
	}
	s.Name = r.displayName()
	return s
}

// displayName picks a human-readable task name: the torrent info name,
// then the first file's basename, then the GID.
func (r rawStatus) displayName() string {
	if r.Bittorrent != nil && r.Bittorrent.Info.Name != "" {
		return r.Bittorrent.Info.Name
	}
	if len(r.Files) > 0 && r.Files[0].Path != "" {
		return path.Base(r.Files[0].Path)
	}
	return r.GID
}
