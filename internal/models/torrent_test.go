package models

import (
	"testing"
	"time"
)

func TestHasTag(t *testing.T) {
	tor := Torrent{Tags: []string{"movies", " Keep "}}
	if !tor.HasTag("keep") {
		t.Error("expected case-insensitive match on keep")
	}
	if tor.HasTag("kee") {
		t.Error("substring must not match")
	}
	if tor.HasTag("") {
		t.Error("empty tag must never match")
	}
}

func TestCompleted(t *testing.T) {
	if (Torrent{Progress: 1}).Completed() {
		t.Error("zero completion time should be incomplete")
	}
	if (Torrent{Progress: 0.5, CompletedOn: time.Now()}).Completed() {
		t.Error("partial progress should be incomplete")
	}
	if !(Torrent{Progress: 1, CompletedOn: time.Now()}).Completed() {
		t.Error("expected completed")
	}
}

func TestTrackerPseudo(t *testing.T) {
	for _, u := range []string{"** [DHT] **", "** [PeX] **", "** [LSD] **"} {
		if !(Tracker{URL: u}).Pseudo() {
			t.Errorf("%q should be pseudo", u)
		}
	}
	if (Tracker{URL: "https://tracker.example.org/announce"}).Pseudo() {
		t.Error("real tracker reported as pseudo")
	}
}
