package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"implayer/internal/playlist"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLibraryOpen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Artist - One.mp3"), []byte("x"))
	writeFile(t, filepath.Join(dir, "Artist - Two.flac"), []byte("x"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("x"))
	writeFile(t, filepath.Join(dir, "mix.m3u8"), []byte("Artist - One.mp3\n"))

	store := playlist.NewStore(dir)
	lib := NewLibrary(dir, store, nil)
	if err := lib.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	infos := store.Playlists()
	if len(infos) != 3 {
		t.Fatalf("got %d playlists, want 3 (All, All Unused, mix)", len(infos))
	}
	if infos[0].Name != playlist.AllPlaylistName || len(infos[0].Songs) != 2 {
		t.Errorf("All view = %q with %d songs, want 2", infos[0].Name, len(infos[0].Songs))
	}
	if infos[1].Name != playlist.AllUnusedPlaylistName || len(infos[1].Songs) != 1 {
		t.Fatalf("All Unused view = %q with %d songs, want 1", infos[1].Name, len(infos[1].Songs))
	}
	if got := filepath.Base(infos[1].Songs[0].Path); got != "Artist - Two.flac" {
		t.Errorf("unused song = %q, want the unreferenced one", got)
	}
	if infos[2].ID != "mix" || len(infos[2].Songs) != 1 {
		t.Errorf("loaded playlist = %q with %d songs, want mix with 1", infos[2].ID, len(infos[2].Songs))
	}
	if !infos[0].Virtual || !infos[1].Virtual || infos[2].Virtual {
		t.Error("virtual flags wrong on playlist snapshots")
	}
}

func TestLibraryOpenSkipsMalformedPlaylist(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.mp3"), []byte("x"))
	writeFile(t, filepath.Join(dir, "bad.m3u8"), []byte{0xff, 0xfe, 0x00})
	writeFile(t, filepath.Join(dir, "good.m3u8"), []byte("song.mp3\n"))

	store := playlist.NewStore(dir)
	lib := NewLibrary(dir, store, nil)
	if err := lib.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := store.Playlist("bad"); err == nil {
		t.Error("malformed playlist was loaded")
	}
	if _, err := store.Playlist("good"); err != nil {
		t.Errorf("valid playlist missing: %v", err)
	}
}

func TestLibraryRefreshViews(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp3"), []byte("x"))
	writeFile(t, filepath.Join(dir, "b.mp3"), []byte("x"))
	writeFile(t, filepath.Join(dir, "mix.m3u8"), []byte("a.mp3\n"))

	store := playlist.NewStore(dir)
	lib := NewLibrary(dir, store, nil)
	if err := lib.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := store.AddSongs("mix", []string{filepath.Join(dir, "b.mp3")}, -1); err != nil {
		t.Fatalf("AddSongs: %v", err)
	}
	lib.RefreshViews()

	unused, err := store.Playlist(playlist.AllUnusedPlaylistName)
	if err != nil {
		t.Fatal(err)
	}
	if len(unused.Songs) != 0 {
		t.Errorf("All Unused has %d songs after both became used, want 0", len(unused.Songs))
	}
}

func TestLibraryRescanPicksUpNewPlaylist(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp3"), []byte("x"))

	store := playlist.NewStore(dir)
	lib := NewLibrary(dir, store, nil)
	if err := lib.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	writeFile(t, filepath.Join(dir, "fresh.m3u8"), []byte("a.mp3\n"))
	if err := lib.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if _, err := store.Playlist("fresh"); err != nil {
		t.Errorf("new playlist not loaded after rescan: %v", err)
	}
}
