package api

import "time"

// FormatKind identifies the container/codec family of a song file.
type FormatKind string

const (
	FormatMP3     FormatKind = "mp3"
	FormatFLAC    FormatKind = "flac"
	FormatM4A     FormatKind = "m4a"
	FormatOGG     FormatKind = "ogg"
	FormatWAV     FormatKind = "wav"
	FormatUnknown FormatKind = ""
)

// Song is one entry in a playlist. Identity is the absolute file path; all
// playlists referencing the same file share one Song record.
type Song struct {
	Path     string        `json:"path"`
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Duration time.Duration `json:"duration"`
	Format   FormatKind    `json:"format"`
	// Missing marks a broken stub: the playlist references the path but the
	// file does not exist. The entry is kept so the m3u8 loses nothing.
	Missing bool `json:"missing"`
}

// DisplayTitle returns the best human-readable name for the song.
func (s Song) DisplayTitle() string {
	if s.Artist != "" && s.Title != "" {
		return s.Artist + " - " + s.Title
	}
	if s.Title != "" {
		return s.Title
	}
	return s.Path
}

// PlaylistInfo is a read-only snapshot of a playlist handed to callers.
type PlaylistInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path"` // backing m3u8 file; empty for synthetic views
	Virtual bool   `json:"virtual"`
	Songs   []Song `json:"songs"`
}

// PlaybackStatus is the transport state of the playback engine.
type PlaybackStatus int

const (
	StatusStopped PlaybackStatus = iota
	StatusPlaying
	StatusPaused
)

func (s PlaybackStatus) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Session describes the single active playback session: which playlist and
// song index is playing, the transport state and the elapsed position.
type Session struct {
	PlaylistID string         `json:"playlist_id"`
	SongIndex  int            `json:"song_index"`
	Status     PlaybackStatus `json:"status"`
	Position   time.Duration  `json:"position"`
	Volume     float64        `json:"volume"`
}

// EndOfListPolicy controls what Next does past the last song.
type EndOfListPolicy string

const (
	EndOfListStop EndOfListPolicy = "stop"
	EndOfListLoop EndOfListPolicy = "loop"
)

// JobStatus is the state of a download job.
type JobStatus string

const (
	JobFetching    JobStatus = "fetching"
	JobNormalizing JobStatus = "normalizing"
	JobSucceeded   JobStatus = "succeeded"
	JobFailed      JobStatus = "failed"
)

// Terminal reports whether the job has reached a final state.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// DownloadJob is a snapshot of one fetch+normalize job.
type DownloadJob struct {
	ID         string    `json:"id"`
	PlaylistID string    `json:"playlist_id"`
	Query      string    `json:"query"`
	Status     JobStatus `json:"status"`
	Progress   string    `json:"progress,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// EventType discriminates facade events.
type EventType int

const (
	EventPlaybackStateChanged EventType = iota
	EventPositionUpdate
	EventPlaylistChanged
	EventDownloadJobUpdated
	EventSongBroken
)

func (t EventType) String() string {
	switch t {
	case EventPlaybackStateChanged:
		return "playback-state-changed"
	case EventPositionUpdate:
		return "position-update"
	case EventPlaylistChanged:
		return "playlist-changed"
	case EventDownloadJobUpdated:
		return "download-job-updated"
	case EventSongBroken:
		return "song-broken"
	default:
		return "unknown"
	}
}

// Event is a discrete notification emitted by the engine facade so the
// presentation layer can update without polling.
type Event struct {
	Type EventType
	// Session for playback events, PlaylistID for playlist events, Job for
	// download events, SongPath for broken-song events.
	Session    *Session
	PlaylistID string
	Job        *DownloadJob
	SongPath   string
	Position   time.Duration
}
