package events

import (
	"testing"
	"time"

	"implayer/api"
)

func TestSubscribeReceivesOnlyItsType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(api.EventPlaylistChanged)
	bus.Publish(api.Event{Type: api.EventPlaybackStateChanged})
	bus.Publish(api.Event{Type: api.EventPlaylistChanged, PlaylistID: "mix"})

	select {
	case ev := <-ch:
		if ev.Type != api.EventPlaylistChanged || ev.PlaylistID != "mix" {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.SubscribeAll()
	bus.Publish(api.Event{Type: api.EventPlaybackStateChanged})
	bus.Publish(api.Event{Type: api.EventSongBroken, SongPath: "x.mp3"})

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("only received %d of 2 events", i)
		}
	}
}

func TestPublishSkipsFullSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(api.EventPositionUpdate)
	// Overflow the buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(api.Event{Type: api.EventPositionUpdate})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if len(ch) == 0 {
		t.Fatal("subscriber received nothing")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.SubscribeAll()
	bus.Unsubscribe(ch)
	bus.Publish(api.Event{Type: api.EventPlaylistChanged})

	select {
	case ev := <-ch:
		t.Fatalf("received %+v after unsubscribe", ev)
	default:
	}
}
