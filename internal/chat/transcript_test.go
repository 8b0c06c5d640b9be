package chat

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/venturelab/sprint-copilot/internal/config"
)

func newTestTranscript(t *testing.T) (*Transcript, string) {
	t.Helper()
	dir := t.TempDir()
	tr, err := NewTranscript(config.TranscriptLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	})
	if err != nil {
		t.Fatalf("NewTranscript failed: %v", err)
	}
	return tr, dir
}

// waitForLines polls until the transcript file holds n lines or the timeout
// expires. Events are written by a background worker.
func waitForLines(t *testing.T, path string, n int) []TranscriptEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := readEvents(t, path)
		if len(events) >= n {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d transcript lines in %s", n, path)
	return nil
}

func readEvents(t *testing.T, path string) []TranscriptEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var events []TranscriptEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev TranscriptEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("Invalid NDJSON line: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func TestTranscriptWritesNDJSONPerSession(t *testing.T) {
	t.Parallel()

	tr, dir := newTestTranscript(t)
	defer tr.Close()

	tr.Log(TranscriptEvent{UserID: "u1", SessionID: "s1", Role: "user", Phase: "design", Content: "hello"})
	tr.Log(TranscriptEvent{UserID: "u1", SessionID: "s1", Role: "assistant", Phase: "design", Content: "hi there"})
	tr.Log(TranscriptEvent{UserID: "u1", SessionID: "s2", Role: "user", Phase: "execute", Content: "other session"})

	events := waitForLines(t, filepath.Join(dir, "u1", "s1.ndjson"), 2)
	if events[0].Role != "user" || events[0].Content != "hello" {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	if events[1].Role != "assistant" || events[1].Content != "hi there" {
		t.Errorf("Unexpected second event: %+v", events[1])
	}
	if events[0].Timestamp == "" {
		t.Error("Expected a timestamp to be filled in")
	}

	other := waitForLines(t, filepath.Join(dir, "u1", "s2.ndjson"), 1)
	if other[0].Content != "other session" {
		t.Errorf("Unexpected event in second session file: %+v", other[0])
	}
}

func TestTranscriptSanitizesIDs(t *testing.T) {
	t.Parallel()

	tr, dir := newTestTranscript(t)
	defer tr.Close()

	tr.Log(TranscriptEvent{UserID: "../evil", SessionID: "a/b", Role: "user", Content: "x"})

	events := waitForLines(t, filepath.Join(dir, ".._evil", "a_b.ndjson"), 1)
	if events[0].Content != "x" {
		t.Errorf("Unexpected event: %+v", events[0])
	}
}

func TestTranscriptCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	tr, dir := newTestTranscript(t)

	for i := 0; i < 10; i++ {
		tr.Log(TranscriptEvent{UserID: "u1", SessionID: "s1", Role: "user", Content: "msg"})
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := readEvents(t, filepath.Join(dir, "u1", "s1.ndjson"))
	if len(events) != 10 {
		t.Errorf("Expected all 10 queued events flushed on close, got %d", len(events))
	}
}

func TestTranscriptDisabled(t *testing.T) {
	t.Parallel()

	tr, err := NewTranscript(config.TranscriptLogConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTranscript failed: %v", err)
	}
	if tr != nil {
		t.Fatal("Expected nil transcript when disabled")
	}

	// Nil receiver is safe.
	tr.Log(TranscriptEvent{UserID: "u1", SessionID: "s1", Content: "dropped"})
	if err := tr.Close(); err != nil {
		t.Errorf("Close on nil transcript failed: %v", err)
	}
}
