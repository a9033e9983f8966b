// Package playlist holds the in-memory model of m3u8-backed playlists and
// keeps it consistent with the files on disk.
package playlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"implayer/api"
	"implayer/internal/logging"
	"implayer/internal/m3u"
	playerrors "implayer/pkg/errors"
)

// Names of the synthetic read-only views built from the directory scan.
const (
	AllPlaylistName       = "All"
	AllUnusedPlaylistName = "All Unused"
)

// Direction is a reorder direction.
type Direction int

const (
	Up Direction = iota
	Down
)

// Match pairs a song with its position in the underlying playlist order. It
// is what search and sort views return: the stored order never changes.
type Match struct {
	Index int
	Song  api.Song
}

type item struct {
	entry string // verbatim m3u8 line, preserved for round-tripping
	song  *api.Song
}

type list struct {
	id      string
	name    string
	path    string
	virtual bool
	items   []item
}

func (l *list) entries() []string {
	entries := make([]string, len(l.items))
	for i, it := range l.items {
		entries[i] = it.entry
	}
	return entries
}

func (l *list) snapshot() []item {
	cp := make([]item, len(l.items))
	copy(cp, l.items)
	return cp
}

// Store owns the in-memory ordering of every loaded playlist and the
// canonical path-keyed song table. All mutations are applied to memory first
// and then flushed through the Syncer; a failed flush rolls the memory back
// so model and disk never diverge.
type Store struct {
	baseDir          string
	syncer           Syncer
	rejectDuplicates bool
	log              zerolog.Logger

	mu    sync.RWMutex
	lists map[string]*list
	songs map[string]*api.Song

	onChange func(playlistID string)
}

// Option configures a Store.
type Option func(*Store)

// RejectDuplicates makes AddSongs fail when a path is already present in the
// target playlist. The m3u8 format itself permits duplicates.
func RejectDuplicates() Option {
	return func(s *Store) { s.rejectDuplicates = true }
}

// WithSyncer replaces the filesystem syncer, used by tests.
func WithSyncer(sy Syncer) Option {
	return func(s *Store) { s.syncer = sy }
}

// NewStore creates a store rooted at the music directory baseDir.
func NewStore(baseDir string, opts ...Option) *Store {
	s := &Store{
		baseDir: baseDir,
		syncer:  FileSyncer{},
		log:     logging.For("store"),
		lists:   make(map[string]*list),
		songs:   make(map[string]*api.Song),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOnChange registers a hook invoked after every committed mutation with
// the id of the changed playlist.
func (s *Store) SetOnChange(fn func(playlistID string)) {
	s.onChange = fn
}

func (s *Store) notify(ids ...string) {
	if s.onChange == nil {
		return
	}
	for _, id := range ids {
		s.onChange(id)
	}
}

// resolve turns an m3u8 entry into a canonical absolute path.
func (s *Store) resolve(entry string) string {
	if filepath.IsAbs(entry) {
		return filepath.Clean(entry)
	}
	return filepath.Join(s.baseDir, entry)
}

// entryFor is the inverse of resolve: paths under the music directory are
// written relative so the playlist files stay portable.
func (s *Store) entryFor(path string) string {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// songFor returns the canonical record for path, creating it on first use.
// Caller must hold s.mu.
func (s *Store) songFor(path string) *api.Song {
	if song, ok := s.songs[path]; ok {
		return song
	}
	song := NewSong(path)
	s.songs[path] = song
	return song
}

// sweep drops canonical records no longer referenced by any playlist.
// Caller must hold s.mu.
func (s *Store) sweep(candidates []*api.Song) {
	for _, song := range candidates {
		referenced := false
		for _, l := range s.lists {
			for _, it := range l.items {
				if it.song == song {
					referenced = true
					break
				}
			}
			if referenced {
				break
			}
		}
		if !referenced {
			delete(s.songs, song.Path)
		}
	}
}

// Load parses the m3u8 file at path into a playlist. Entries whose files are
// missing become broken stubs; only a malformed file itself is an error.
func (s *Store) Load(path string) (string, error) {
	entries, err := m3u.ParseFile(path)
	if err != nil {
		if errors.Is(err, playerrors.ErrInvalidPlaylistFile) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", playerrors.ErrInvalidPlaylistFile, err)
	}

	name := PlaylistID(path)

	s.mu.Lock()
	l := &list{id: name, name: name, path: path}
	for _, entry := range entries {
		l.items = append(l.items, item{entry: entry, song: s.songFor(s.resolve(entry))})
	}
	s.lists[l.id] = l
	s.mu.Unlock()

	s.log.Debug().Str("playlist", name).Int("songs", len(entries)).Msg("loaded playlist")
	return name, nil
}

// Create adds a new empty playlist backed by a fresh m3u8 file.
func (s *Store) Create(name string) (string, error) {
	s.mu.Lock()
	if _, exists := s.lists[name]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: playlist %q already exists", playerrors.ErrPersistFailed, name)
	}
	l := &list{id: name, name: name, path: filepath.Join(s.baseDir, name+m3u.Extension)}
	// An unloaded file of the same name must not be silently truncated.
	if _, err := os.Stat(l.path); err == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s already exists on disk", playerrors.ErrPersistFailed, l.path)
	} else if !os.IsNotExist(err) {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %v", playerrors.ErrPersistFailed, err)
	}
	if err := s.syncer.WritePlaylist(l.path, nil); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %v", playerrors.ErrPersistFailed, err)
	}
	s.lists[name] = l
	s.mu.Unlock()

	s.notify(name)
	return name, nil
}

// Delete removes a playlist and its backing file. Songs referenced nowhere
// else are dropped from the canonical table.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	l, ok := s.lists[id]
	if !ok {
		s.mu.Unlock()
		return playerrors.ErrPlaylistNotFound
	}
	if l.virtual {
		s.mu.Unlock()
		return playerrors.ErrReadOnlyPlaylist
	}
	if err := s.syncer.RemoveFile(l.path); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", playerrors.ErrPersistFailed, err)
	}
	delete(s.lists, id)
	var songs []*api.Song
	for _, it := range l.items {
		songs = append(songs, it.song)
	}
	s.sweep(songs)
	s.mu.Unlock()

	s.notify(id)
	return nil
}

// RegisterVirtual installs or replaces a synthetic read-only playlist view,
// such as the All and All Unused listings built from the directory scan.
func (s *Store) RegisterVirtual(name string, paths []string) string {
	s.mu.Lock()
	l := &list{id: name, name: name, virtual: true}
	for _, path := range paths {
		l.items = append(l.items, item{entry: s.entryFor(path), song: s.songFor(path)})
	}
	s.lists[name] = l
	s.mu.Unlock()

	s.notify(name)
	return name
}

// Playlists returns snapshots of every playlist, synthetic views first and
// the rest ordered by name.
func (s *Store) Playlists() []api.PlaylistInfo {
	s.mu.RLock()
	infos := make([]api.PlaylistInfo, 0, len(s.lists))
	for _, l := range s.lists {
		infos = append(infos, s.infoLocked(l))
	}
	s.mu.RUnlock()

	rank := func(p api.PlaylistInfo) int {
		switch p.Name {
		case AllPlaylistName:
			return 0
		case AllUnusedPlaylistName:
			return 1
		default:
			return 2
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		ri, rj := rank(infos[i]), rank(infos[j])
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(infos[i].Name) < strings.ToLower(infos[j].Name)
	})
	return infos
}

// Playlist returns a snapshot of one playlist.
func (s *Store) Playlist(id string) (api.PlaylistInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[id]
	if !ok {
		return api.PlaylistInfo{}, playerrors.ErrPlaylistNotFound
	}
	return s.infoLocked(l), nil
}

func (s *Store) infoLocked(l *list) api.PlaylistInfo {
	info := api.PlaylistInfo{ID: l.id, Name: l.name, Path: l.path, Virtual: l.virtual}
	info.Songs = make([]api.Song, len(l.items))
	for i, it := range l.items {
		info.Songs[i] = *it.song
	}
	return info
}

// SongAt returns the song at index in the playlist's current order.
func (s *Store) SongAt(id string, index int) (api.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[id]
	if !ok {
		return api.Song{}, playerrors.ErrPlaylistNotFound
	}
	if index < 0 || index >= len(l.items) {
		return api.Song{}, playerrors.ErrNoSuchSong
	}
	return *l.items[index].song, nil
}

// Len returns the number of songs in a playlist, or 0 if it does not exist.
func (s *Store) Len(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.lists[id]; ok {
		return len(l.items)
	}
	return 0
}

// mutate runs fn against the playlist, flushes the result and rolls back the
// in-memory order if the flush fails. Mutations are serialized: the store
// lock is held from the first in-memory change until the flush has landed.
func (s *Store) mutate(id string, fn func(l *list) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[id]
	if !ok {
		return playerrors.ErrPlaylistNotFound
	}
	if l.virtual {
		return playerrors.ErrReadOnlyPlaylist
	}

	snapshot := l.snapshot()
	if err := fn(l); err != nil {
		return err
	}
	if err := s.syncer.WritePlaylist(l.path, l.entries()); err != nil {
		l.items = snapshot
		s.log.Error().Err(err).Str("playlist", id).Msg("flush failed, rolled back")
		return fmt.Errorf("%w: %v", playerrors.ErrPersistFailed, err)
	}
	return nil
}

// AddSongs inserts the given files at position (len or -1 appends). Duplicate
// paths are permitted unless the store was built with RejectDuplicates.
func (s *Store) AddSongs(id string, paths []string, position int) error {
	if len(paths) == 0 {
		return nil
	}
	err := s.mutate(id, func(l *list) error {
		if position < 0 || position > len(l.items) {
			position = len(l.items)
		}
		if s.rejectDuplicates {
			present := make(map[string]bool, len(l.items))
			for _, it := range l.items {
				present[it.song.Path] = true
			}
			for _, path := range paths {
				if present[path] {
					return fmt.Errorf("%w: %s", playerrors.ErrDuplicateSong, path)
				}
			}
		}
		inserted := make([]item, 0, len(paths))
		for _, path := range paths {
			path = filepath.Clean(path)
			inserted = append(inserted, item{entry: s.entryFor(path), song: s.songFor(path)})
		}
		l.items = append(l.items[:position:position], append(inserted, l.items[position:]...)...)
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(id)
	return nil
}

// RemoveSongs removes the given positions and returns the removed songs in
// position order. Out-of-range positions fail before anything is changed.
func (s *Store) RemoveSongs(id string, positions []int) ([]api.Song, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)

	var removed []api.Song
	err := s.mutate(id, func(l *list) error {
		for _, p := range sorted {
			if p < 0 || p >= len(l.items) {
				return fmt.Errorf("%w: position %d", playerrors.ErrNoSuchSong, p)
			}
		}
		var dropped []*api.Song
		for i := len(sorted) - 1; i >= 0; i-- {
			p := sorted[i]
			if i > 0 && sorted[i-1] == p { // ignore duplicate positions
				continue
			}
			removed = append([]api.Song{*l.items[p].song}, removed...)
			dropped = append(dropped, l.items[p].song)
			l.items = append(l.items[:p], l.items[p+1:]...)
		}
		s.sweep(dropped)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(id)
	return removed, nil
}

// Reorder moves the selected positions one slot up or down as a unit,
// preserving their relative order and clamping at the list boundary. It
// returns the permutation of the whole list (perm[old] = new) so callers can
// remap any indices they hold.
func (s *Store) Reorder(id string, positions []int, dir Direction) ([]int, error) {
	var perm []int
	err := s.mutate(id, func(l *list) error {
		n := len(l.items)
		for _, p := range positions {
			if p < 0 || p >= n {
				return fmt.Errorf("%w: position %d", playerrors.ErrNoSuchSong, p)
			}
		}
		perm = make([]int, n)
		for i := range perm {
			perm[i] = i
		}
		sorted := append([]int(nil), positions...)
		sort.Ints(sorted)

		swap := func(a, b int) {
			l.items[a], l.items[b] = l.items[b], l.items[a]
			for i, v := range perm {
				switch v {
				case a:
					perm[i] = b
				case b:
					perm[i] = a
				}
			}
		}

		// A selected item only moves when the neighbouring slot is free,
		// i.e. not just vacated by another selected item: the block clamps
		// at the boundary instead of compressing.
		last := -1
		if dir == Up {
			for _, p := range sorted {
				if p > 0 && (last == -1 || last < p-1) {
					swap(p-1, p)
					last = p - 1
				} else {
					last = p
				}
			}
		} else {
			for i := len(sorted) - 1; i >= 0; i-- {
				p := sorted[i]
				if p < n-1 && (last == -1 || last > p+1) {
					swap(p, p+1)
					last = p + 1
				} else {
					last = p
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(id)
	return perm, nil
}

// MoveAcrossPlaylists moves the selected positions from one playlist to
// another, inserting at destPosition. The move is atomic with respect to the
// in-memory model: when persisting either side fails, both playlists are
// restored to their previous state.
func (s *Store) MoveAcrossPlaylists(srcID string, positions []int, dstID string, destPosition int) error {
	if len(positions) == 0 {
		return nil
	}
	if srcID == dstID {
		return fmt.Errorf("%w: source and destination are the same playlist", playerrors.ErrPlaylistNotFound)
	}

	s.mu.Lock()

	src, ok := s.lists[srcID]
	if !ok {
		s.mu.Unlock()
		return playerrors.ErrPlaylistNotFound
	}
	dst, ok := s.lists[dstID]
	if !ok {
		s.mu.Unlock()
		return playerrors.ErrPlaylistNotFound
	}
	if src.virtual || dst.virtual {
		s.mu.Unlock()
		return playerrors.ErrReadOnlyPlaylist
	}

	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	for _, p := range sorted {
		if p < 0 || p >= len(src.items) {
			s.mu.Unlock()
			return fmt.Errorf("%w: position %d", playerrors.ErrNoSuchSong, p)
		}
	}

	srcSnapshot := src.snapshot()
	dstSnapshot := dst.snapshot()

	moved := make([]item, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		if i > 0 && sorted[i-1] == p {
			continue
		}
		moved = append([]item{src.items[p]}, moved...)
		src.items = append(src.items[:p], src.items[p+1:]...)
	}
	if destPosition < 0 || destPosition > len(dst.items) {
		destPosition = len(dst.items)
	}
	dst.items = append(dst.items[:destPosition:destPosition], append(moved, dst.items[destPosition:]...)...)

	rollback := func() {
		src.items = srcSnapshot
		dst.items = dstSnapshot
	}
	if err := s.syncer.WritePlaylist(src.path, src.entries()); err != nil {
		rollback()
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", playerrors.ErrPersistFailed, err)
	}
	if err := s.syncer.WritePlaylist(dst.path, dst.entries()); err != nil {
		rollback()
		// Best effort: put the already-flushed source back in sync with the
		// restored in-memory order.
		if werr := s.syncer.WritePlaylist(src.path, src.entries()); werr != nil {
			s.log.Error().Err(werr).Str("playlist", srcID).Msg("restore flush failed")
		}
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", playerrors.ErrPersistFailed, err)
	}
	s.mu.Unlock()

	s.notify(srcID, dstID)
	return nil
}

// Search returns the positions whose display title or file name contains the
// query, case-insensitively, in stored order. The underlying order is never
// touched.
func (s *Store) Search(id, query string) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		return nil, playerrors.ErrPlaylistNotFound
	}
	query = strings.ToLower(query)
	var matches []Match
	for i, it := range l.items {
		title := strings.ToLower(it.song.DisplayTitle())
		base := strings.ToLower(filepath.Base(it.song.Path))
		if strings.Contains(title, query) || strings.Contains(base, query) {
			matches = append(matches, Match{Index: i, Song: *it.song})
		}
	}
	return matches, nil
}

// SortField selects the key for sorted views.
type SortField string

const (
	SortByTitle    SortField = "title"
	SortByArtist   SortField = "artist"
	SortByDuration SortField = "duration"
)

// SortView returns a sorted view of the playlist without reordering it.
func (s *Store) SortView(id string, field SortField) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		return nil, playerrors.ErrPlaylistNotFound
	}
	matches := make([]Match, len(l.items))
	for i, it := range l.items {
		matches[i] = Match{Index: i, Song: *it.song}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Song, matches[j].Song
		switch field {
		case SortByArtist:
			return strings.ToLower(a.Artist) < strings.ToLower(b.Artist)
		case SortByDuration:
			return a.Duration < b.Duration
		default:
			return strings.ToLower(a.DisplayTitle()) < strings.ToLower(b.DisplayTitle())
		}
	})
	return matches, nil
}

// Flush rewrites the playlist's m3u8 file from the in-memory order.
func (s *Store) Flush(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		return playerrors.ErrPlaylistNotFound
	}
	if l.virtual {
		return nil
	}
	if err := s.syncer.WritePlaylist(l.path, l.entries()); err != nil {
		return fmt.Errorf("%w: %v", playerrors.ErrPersistFailed, err)
	}
	return nil
}

// UpdateDuration records a probed duration on the canonical song record.
func (s *Store) UpdateDuration(path string, d api.Song) {
	s.mu.Lock()
	if song, ok := s.songs[path]; ok {
		song.Duration = d.Duration
		if d.Title != "" {
			song.Title = d.Title
		}
		if d.Artist != "" {
			song.Artist = d.Artist
		}
	}
	s.mu.Unlock()
}

// RefreshMissing re-stats a song file and updates its broken-stub flag,
// returning the ids of playlists referencing it.
func (s *Store) RefreshMissing(path string) []string {
	s.mu.Lock()
	song, ok := s.songs[path]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	_, err := os.Stat(path)
	song.Missing = err != nil

	var ids []string
	for _, l := range s.lists {
		for _, it := range l.items {
			if it.song == song {
				ids = append(ids, l.id)
				break
			}
		}
	}
	s.mu.Unlock()

	s.notify(ids...)
	return ids
}
