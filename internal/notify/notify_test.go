package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/seedkeeper/internal/logging"
	"github.com/starford/seedkeeper/internal/sse"
)

func testDiscord(url string) (*Discord, *[]time.Duration) {
	d := NewDiscord(url, logging.Discard())
	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return d, &slept
}

func TestDiscordSendsEmbed(t *testing.T) {
	var got discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d, _ := testDiscord(srv.URL)
	err := d.Notify(context.Background(), Event{
		Level:  Error,
		Title:  "Deleted torrent",
		Fields: []Field{{Name: "Name", Value: "x"}, {Name: "Ratio", Value: "1.5", Inline: true}},
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Title != "Deleted torrent" || e.Color != colorError || len(e.Fields) != 2 || !e.Fields[1].Inline {
		t.Errorf("embed = %+v", e)
	}
}

func TestDiscordRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"retry_after": 0.25}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d, slept := testDiscord(srv.URL)
	if err := d.Notify(context.Background(), Event{Title: "t"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if len(*slept) != 1 || (*slept)[0] != 250*time.Millisecond {
		t.Errorf("slept = %v, want [250ms]", *slept)
	}
}

func TestDiscordGivesUpAfterRepeatedRateLimits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"retry_after": 1}`))
	}))
	defer srv.Close()

	d, _ := testDiscord(srv.URL)
	if err := d.Notify(context.Background(), Event{Title: "t"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != maxRateLimitRetries {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRateLimitRetries)
	}
}

func TestDiscordReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	d, _ := testDiscord(srv.URL)
	err := d.Notify(context.Background(), Event{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want 400 failure", err)
	}
}

func TestDiscordDisabledWithoutURL(t *testing.T) {
	d, _ := testDiscord("")
	if err := d.Notify(context.Background(), Event{Title: "t"}); err != nil {
		t.Errorf("Notify: %v", err)
	}
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMultiDeliversToAll(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{err: boom}, &recorder{}
	err := Multi{a, b}.Notify(context.Background(), Event{Title: "t"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestSendSwallowsErrors(t *testing.T) {
	r := &recorder{err: errors.New("down")}
	Send(context.Background(), r, logging.Discard(), Event{Title: "t"})
	Send(context.Background(), nil, logging.Discard(), Event{Title: "t"})
	if len(r.events) != 1 {
		t.Errorf("events = %d, want 1", len(r.events))
	}
}

func TestStreamPublishes(t *testing.T) {
	b := sse.NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	if err := NewStream(b).Notify(context.Background(), Event{Title: "Orphan deleted"}); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: notification") || !strings.Contains(s, "Orphan deleted") {
			t.Errorf("message = %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
	}
}
