package cli

import (
	"github.com/rs/zerolog"

	"implayer/api"
)

// logEvent renders one engine event as a log line. Position updates arrive
// twice a second and stay at trace level so they do not drown everything
// else.
func logEvent(log zerolog.Logger, ev api.Event) {
	switch ev.Type {
	case api.EventPlaybackStateChanged:
		e := log.Info().Stringer("event", ev.Type)
		if ev.Session != nil {
			e = e.Str("playlist", ev.Session.PlaylistID).
				Int("index", ev.Session.SongIndex).
				Stringer("status", ev.Session.Status)
		}
		e.Msg("playback")
	case api.EventPositionUpdate:
		log.Trace().Dur("position", ev.Position).Msg("position")
	case api.EventPlaylistChanged:
		log.Info().Stringer("event", ev.Type).Str("playlist", ev.PlaylistID).Msg("playlist")
	case api.EventDownloadJobUpdated:
		if ev.Job == nil {
			return
		}
		e := log.Info().Str("job", ev.Job.ID).Str("status", string(ev.Job.Status))
		if ev.Job.Err != "" {
			e = e.Str("error", ev.Job.Err)
		}
		e.Msg("download")
	case api.EventSongBroken:
		log.Warn().Str("path", ev.SongPath).Msg("song is broken")
	}
}
