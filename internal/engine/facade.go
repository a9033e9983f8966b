// Package engine is the single API surface the presentation layer talks to.
// It aggregates the playlist store, the playback engine, the library and the
// download pipeline, owns the one active playback session and emits change
// events over the bus so callers never have to poll.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"implayer/api"
	"implayer/internal/audio"
	"implayer/internal/config"
	"implayer/internal/download"
	"implayer/internal/library"
	"implayer/internal/logging"
	"implayer/internal/playlist"
	"implayer/pkg/events"
	playerrors "implayer/pkg/errors"
)

// Facade wires the components together behind one API.
type Facade struct {
	cfg   *config.Config
	store *playlist.Store
	lib   *library.Library
	play  *audio.Engine
	pipe  *download.Pipeline
	bus   *events.Bus
	log   zerolog.Logger

	mu      sync.Mutex
	session api.Session
	active  bool
	policy  api.EndOfListPolicy
}

// New wires the facade. The library and the pipeline may be nil when those
// features are not in use.
func New(cfg *config.Config, store *playlist.Store, lib *library.Library, play *audio.Engine, pipe *download.Pipeline) *Facade {
	f := &Facade{
		cfg:     cfg,
		store:   store,
		lib:     lib,
		play:    play,
		pipe:    pipe,
		bus:     events.NewBus(),
		log:     logging.For("engine"),
		session: api.Session{SongIndex: -1},
		policy:  cfg.Policy(),
	}

	store.SetOnChange(func(playlistID string) {
		f.bus.Publish(api.Event{Type: api.EventPlaylistChanged, PlaylistID: playlistID})
	})
	play.SetHooks(f.onSongEnd, f.onPosition)
	if pipe != nil {
		pipe.SetCallbacks(f.onJobUpdate, f.onDownloadDone)
	}
	return f
}

// Start brings the engine up: audio device, library scan and, when enabled,
// the directory watcher. It returns once the initial scan is done.
func (f *Facade) Start(ctx context.Context) error {
	if err := f.play.Start(ctx); err != nil {
		return err
	}
	if f.lib != nil {
		if err := f.lib.Open(ctx); err != nil {
			return err
		}
		if f.cfg.WatchChanges {
			if err := f.lib.Watch(ctx); err != nil {
				f.log.Warn().Err(err).Msg("directory watcher unavailable")
			}
		}
	}
	return nil
}

// Close stops playback and tears down the event bus.
func (f *Facade) Close() {
	f.play.Stop()
	f.bus.Close()
}

// Subscribe returns a channel receiving every engine event.
func (f *Facade) Subscribe() <-chan api.Event {
	return f.bus.SubscribeAll()
}

// SubscribeType returns a channel receiving only one event type.
func (f *Facade) SubscribeType(t api.EventType) <-chan api.Event {
	return f.bus.Subscribe(t)
}

// Unsubscribe detaches a subscriber channel.
func (f *Facade) Unsubscribe(ch <-chan api.Event) {
	f.bus.Unsubscribe(ch)
}

// --- playlist queries and mutations ---

func (f *Facade) Playlists() []api.PlaylistInfo {
	return f.store.Playlists()
}

func (f *Facade) Playlist(id string) (api.PlaylistInfo, error) {
	return f.store.Playlist(id)
}

func (f *Facade) Search(id, query string) ([]playlist.Match, error) {
	return f.store.Search(id, query)
}

func (f *Facade) SortView(id string, field playlist.SortField) ([]playlist.Match, error) {
	return f.store.SortView(id, field)
}

func (f *Facade) CreatePlaylist(name string) (string, error) {
	return f.store.Create(name)
}

// DeletePlaylist removes a playlist; a playback session pointing into it is
// reset.
func (f *Facade) DeletePlaylist(id string) error {
	if err := f.store.Delete(id); err != nil {
		return err
	}

	f.mu.Lock()
	hadSession := f.active && f.session.PlaylistID == id
	f.mu.Unlock()
	if hadSession {
		f.play.Stop()
		f.mu.Lock()
		f.session = api.Session{SongIndex: -1}
		f.active = false
		snap := f.session
		f.mu.Unlock()
		f.publishState(snap)
	}
	f.refreshViews()
	return nil
}

func (f *Facade) AddSongs(id string, paths []string, position int) error {
	if err := f.store.AddSongs(id, paths, position); err != nil {
		return err
	}

	f.mu.Lock()
	if f.active && f.session.PlaylistID == id && position >= 0 && position <= f.session.SongIndex {
		f.session.SongIndex += len(paths)
	}
	f.mu.Unlock()
	f.refreshViews()
	return nil
}

// RemoveSongs removes the positions from the playlist. When the currently
// playing song is among them, playback advances to the next surviving song
// or stops if none remains.
func (f *Facade) RemoveSongs(id string, positions []int) error {
	if _, err := f.store.RemoveSongs(id, positions); err != nil {
		return err
	}
	f.refreshViews()

	f.mu.Lock()
	if !f.active || f.session.PlaylistID != id {
		f.mu.Unlock()
		return nil
	}
	cur := f.session.SongIndex
	before, removedCurrent := 0, false
	for _, p := range dedup(positions) {
		switch {
		case p < cur:
			before++
		case p == cur:
			removedCurrent = true
		}
	}
	if !removedCurrent {
		f.session.SongIndex = cur - before
		f.mu.Unlock()
		return nil
	}
	next := cur - before
	wasLive := f.session.Status != api.StatusStopped
	f.mu.Unlock()

	if wasLive && next < f.store.Len(id) {
		if err := f.Play(id, next); err == nil {
			return nil
		}
	}
	if n := f.store.Len(id); next >= n {
		next = n - 1
	}
	f.stopSession(next)
	return nil
}

// Reorder moves the positions one slot up or down and keeps the playback
// session pointing at the same song.
func (f *Facade) Reorder(id string, positions []int, dir playlist.Direction) ([]int, error) {
	perm, err := f.store.Reorder(id, positions, dir)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.active && f.session.PlaylistID == id && f.session.SongIndex >= 0 && f.session.SongIndex < len(perm) {
		f.session.SongIndex = perm[f.session.SongIndex]
	}
	f.mu.Unlock()
	return perm, nil
}

// MoveAcrossPlaylists moves the positions to another playlist. A session
// song that moves takes the session with it.
func (f *Facade) MoveAcrossPlaylists(srcID string, positions []int, dstID string, destPosition int) error {
	dstLen := f.store.Len(dstID)
	if err := f.store.MoveAcrossPlaylists(srcID, positions, dstID, destPosition); err != nil {
		return err
	}
	if destPosition < 0 || destPosition > dstLen {
		destPosition = dstLen
	}

	f.mu.Lock()
	if f.active && f.session.PlaylistID == srcID {
		cur := f.session.SongIndex
		moved := dedup(positions)
		before, rank, movedCurrent := 0, 0, false
		for i, p := range moved {
			switch {
			case p < cur:
				before++
			case p == cur:
				movedCurrent = true
				rank = i
			}
		}
		if movedCurrent {
			f.session.PlaylistID = dstID
			f.session.SongIndex = destPosition + rank
		} else {
			f.session.SongIndex = cur - before
		}
	}
	f.mu.Unlock()
	f.refreshViews()
	return nil
}

// RenameSongFile renames a song's file on disk and updates every playlist
// referencing it.
func (f *Facade) RenameSongFile(path, newName string) error {
	if err := f.store.RenameSongFile(path, newName); err != nil {
		return err
	}
	f.refreshViews()
	return nil
}

// --- transport ---

// Play starts playing the song at index in the playlist and makes it the
// active session. Invalid indices fail with NoSuchSong and leave the current
// session untouched.
func (f *Facade) Play(playlistID string, index int) error {
	song, err := f.store.SongAt(playlistID, index)
	if err != nil {
		return err
	}
	if err := f.play.Play(song.Path); err != nil {
		f.store.RefreshMissing(song.Path)
		return err
	}

	f.mu.Lock()
	f.session = api.Session{
		PlaylistID: playlistID,
		SongIndex:  index,
		Status:     api.StatusPlaying,
		Volume:     f.play.Volume(),
	}
	f.active = true
	snap := f.session
	f.mu.Unlock()
	f.publishState(snap)
	return nil
}

func (f *Facade) Pause() error {
	if err := f.play.Pause(); err != nil {
		return err
	}
	f.publishState(f.setStatus(api.StatusPaused))
	return nil
}

func (f *Facade) Resume() error {
	if err := f.play.Resume(); err != nil {
		return err
	}
	f.publishState(f.setStatus(api.StatusPlaying))
	return nil
}

// TogglePause flips between playing and paused, starting the first playable
// song of the playlist when no session exists yet.
func (f *Facade) TogglePause(playlistID string) error {
	switch f.play.Status() {
	case api.StatusPlaying:
		return f.Pause()
	case api.StatusPaused:
		return f.Resume()
	default:
		f.mu.Lock()
		active, sess := f.active, f.session
		f.mu.Unlock()
		if active && sess.PlaylistID == playlistID {
			return f.Play(sess.PlaylistID, sess.SongIndex)
		}
		idx := f.nextPlayable(playlistID, -1)
		if idx < 0 {
			return playerrors.ErrNoSuchSong
		}
		return f.Play(playlistID, idx)
	}
}

func (f *Facade) Stop() {
	f.play.Stop()
	f.publishState(f.setStatus(api.StatusStopped))
}

// Next advances to the next non-missing song, honoring the end-of-list
// policy. The target index is re-derived from the playlist's current order,
// so a reorder between songs is respected.
func (f *Facade) Next() error {
	f.mu.Lock()
	active, sess := f.active, f.session
	f.mu.Unlock()
	if !active {
		return playerrors.ErrInvalidTransition
	}
	idx := f.nextPlayable(sess.PlaylistID, sess.SongIndex)
	if idx < 0 {
		f.Stop()
		return nil
	}
	return f.Play(sess.PlaylistID, idx)
}

// Previous steps back to the nearest non-missing song; at the top of the
// playlist it is a no-op.
func (f *Facade) Previous() error {
	f.mu.Lock()
	active, sess := f.active, f.session
	f.mu.Unlock()
	if !active {
		return playerrors.ErrInvalidTransition
	}
	idx := f.prevPlayable(sess.PlaylistID, sess.SongIndex)
	if idx < 0 {
		return nil
	}
	return f.Play(sess.PlaylistID, idx)
}

func (f *Facade) Seek(pos time.Duration) error {
	return f.play.Seek(pos)
}

func (f *Facade) SetVolume(level float64) error {
	if err := f.play.SetVolume(level); err != nil {
		return err
	}
	f.mu.Lock()
	f.session.Volume = level
	snap := f.session
	f.mu.Unlock()
	f.publishState(snap)
	return nil
}

// SetEndOfListPolicy switches between stopping at the end of the playlist
// and looping back to the start.
func (f *Facade) SetEndOfListPolicy(p api.EndOfListPolicy) {
	f.mu.Lock()
	f.policy = p
	f.mu.Unlock()
}

// Session returns a snapshot of the active playback session with a live
// position and transport state.
func (f *Facade) Session() api.Session {
	f.mu.Lock()
	sess := f.session
	f.mu.Unlock()
	sess.Status = f.play.Status()
	sess.Position = f.play.Position()
	sess.Volume = f.play.Volume()
	return sess
}

// --- downloads ---

// RequestDownload starts a fetch+normalize job whose result lands in the
// playlist. It returns the job id immediately.
func (f *Facade) RequestDownload(playlistID, query string) (string, error) {
	if f.pipe == nil {
		return "", playerrors.ErrFetchFailed
	}
	info, err := f.store.Playlist(playlistID)
	if err != nil {
		return "", err
	}
	if info.Virtual {
		return "", playerrors.ErrReadOnlyPlaylist
	}
	return f.pipe.Request(playlistID, query), nil
}

func (f *Facade) CancelDownload(jobID string) error {
	if f.pipe == nil {
		return playerrors.ErrJobNotFound
	}
	return f.pipe.Cancel(jobID)
}

func (f *Facade) DownloadJobs() []api.DownloadJob {
	if f.pipe == nil {
		return nil
	}
	return f.pipe.Jobs()
}

// --- internal ---

// onSongEnd reacts to the decoder running out: aborted decodes flag the song
// as broken, then playback advances like Next. Songs that fail to open are
// skipped until one plays or the playlist is exhausted.
func (f *Facade) onSongEnd(aborted bool) {
	f.mu.Lock()
	active, sess := f.active, f.session
	f.mu.Unlock()
	if !active {
		return
	}

	if aborted {
		if song, err := f.store.SongAt(sess.PlaylistID, sess.SongIndex); err == nil {
			f.store.RefreshMissing(song.Path)
			f.bus.Publish(api.Event{Type: api.EventSongBroken, SongPath: song.Path})
		}
	}

	attempts := f.store.Len(sess.PlaylistID)
	idx := sess.SongIndex
	for ; attempts > 0; attempts-- {
		idx = f.nextPlayable(sess.PlaylistID, idx)
		if idx < 0 {
			break
		}
		if err := f.Play(sess.PlaylistID, idx); err == nil {
			return
		}
	}
	f.stopSession(sess.SongIndex)
}

func (f *Facade) onPosition(pos time.Duration) {
	f.mu.Lock()
	if f.active {
		f.session.Position = pos
	}
	sess := f.session
	f.mu.Unlock()
	f.bus.Publish(api.Event{Type: api.EventPositionUpdate, Session: &sess, Position: pos})
}

// onJobUpdate relays pipeline updates. A job that has reached its terminal
// state is dropped from the pipeline's table once the event is out; the
// event carries the final snapshot, so nothing is lost.
func (f *Facade) onJobUpdate(snap api.DownloadJob) {
	f.bus.Publish(api.Event{Type: api.EventDownloadJobUpdated, Job: &snap})
	if snap.Status.Terminal() {
		f.pipe.Forget(snap.ID)
	}
}

// onDownloadDone hands a finished download to the requesting playlist.
func (f *Facade) onDownloadDone(playlistID, path string) {
	if err := f.AddSongs(playlistID, []string{path}, -1); err != nil {
		f.log.Error().Err(err).Str("playlist", playlistID).Str("path", path).
			Msg("adding downloaded song failed")
	}
}

// nextPlayable returns the next non-missing index after from, wrapping once
// when the loop policy is active. -1 means nothing left to play.
func (f *Facade) nextPlayable(playlistID string, from int) int {
	n := f.store.Len(playlistID)
	for i := from + 1; i < n; i++ {
		if song, err := f.store.SongAt(playlistID, i); err == nil && !song.Missing {
			return i
		}
	}
	f.mu.Lock()
	loop := f.policy == api.EndOfListLoop
	f.mu.Unlock()
	if loop {
		for i := 0; i <= from && i < n; i++ {
			if song, err := f.store.SongAt(playlistID, i); err == nil && !song.Missing {
				return i
			}
		}
	}
	return -1
}

// prevPlayable returns the nearest non-missing index before from; it never
// wraps.
func (f *Facade) prevPlayable(playlistID string, from int) int {
	for i := from - 1; i >= 0; i-- {
		if song, err := f.store.SongAt(playlistID, i); err == nil && !song.Missing {
			return i
		}
	}
	return -1
}

// stopSession stops playback and parks the session at index.
func (f *Facade) stopSession(index int) {
	f.play.Stop()
	f.mu.Lock()
	if f.active {
		f.session.SongIndex = index
		f.session.Status = api.StatusStopped
		f.session.Position = 0
	}
	snap := f.session
	f.mu.Unlock()
	f.publishState(snap)
}

func (f *Facade) setStatus(status api.PlaybackStatus) api.Session {
	f.mu.Lock()
	f.session.Status = status
	if status == api.StatusStopped {
		f.session.Position = 0
	}
	snap := f.session
	f.mu.Unlock()
	return snap
}

func (f *Facade) publishState(sess api.Session) {
	f.bus.Publish(api.Event{Type: api.EventPlaybackStateChanged, Session: &sess})
}

func (f *Facade) refreshViews() {
	if f.lib != nil {
		f.lib.RefreshViews()
	}
}

func dedup(positions []int) []int {
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	out := sorted[:0]
	for i, p := range sorted {
		if i > 0 && sorted[i-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}
