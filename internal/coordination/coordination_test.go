package coordination

import (
	"strings"
	"testing"

	"github.com/harrison/swarm/internal/models"
)

func testBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus(t.TempDir(), "run-1")
	if err := b.Setup([]string{"worker-1", "worker-2"}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return b
}

func TestWriteAndReadNote(t *testing.T) {
	b := testBus(t)
	note := models.SharedNote{WorkerID: "worker-1", Topic: "schema", Content: "added a Users table", Tags: []string{"db"}}
	if err := b.WriteNote(note); err != nil {
		t.Fatalf("WriteNote: %v", err)
	}

	got, err := b.ReadNote("worker-1")
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if got == nil || got.Content != note.Content {
		t.Fatalf("expected note to round-trip, got %+v", got)
	}

	if _, err := b.ReadNote("nobody"); err != nil {
		t.Fatalf("ReadNote missing: %v", err)
	}
}

func TestFormatNotesSummary(t *testing.T) {
	b := testBus(t)
	b.WriteNote(models.SharedNote{WorkerID: "worker-1", Topic: "schema", Content: "body", Tags: []string{"db"}})

	summary, err := b.FormatNotesSummary()
	if err != nil {
		t.Fatalf("FormatNotesSummary: %v", err)
	}
	if !strings.Contains(summary, "worker-1: schema [db]") {
		t.Errorf("expected summary to mention worker-1 and schema, got %q", summary)
	}
}

func TestSendMessageNumbersSequentially(t *testing.T) {
	b := testBus(t)
	err := b.SendMessage(models.Message{FromWorker: "worker-1", ToWorker: "worker-2", Topic: "heads up", Content: "touching shared.go", Type: models.MessageInfo})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	err = b.SendMessage(models.Message{FromWorker: "worker-1", ToWorker: "worker-2", Topic: "update", Content: "done now", Type: models.MessageDecision})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	inbox, err := b.ReadInbox("worker-2")
	if err != nil {
		t.Fatalf("ReadInbox: %v", err)
	}
	if len(inbox) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(inbox))
	}
	if inbox[0].Topic != "heads up" || inbox[1].Topic != "update" {
		t.Errorf("expected messages in send order, got %+v", inbox)
	}
}

func TestReadAllMessagesAcrossInboxes(t *testing.T) {
	b := testBus(t)
	b.SendMessage(models.Message{FromWorker: "worker-2", ToWorker: "worker-1", Topic: "question", Content: "what's the interface?", Type: models.MessageQuestion})
	b.SendMessage(models.Message{FromWorker: "worker-1", ToWorker: "worker-2", Topic: "answer", Content: "see shared.go", Type: models.MessageInfo})

	all, err := b.ReadAllMessages()
	if err != nil {
		t.Fatalf("ReadAllMessages: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 messages total, got %d", len(all))
	}
}

func TestWriteAndFormatStatus(t *testing.T) {
	b := testBus(t)
	b.WriteStatus(models.WorkerPeerStatus{WorkerID: "worker-1", Status: models.PeerBlocked, Details: "waiting on worker-2"})

	summary, err := b.FormatStatusSummary()
	if err != nil {
		t.Fatalf("FormatStatusSummary: %v", err)
	}
	if !strings.Contains(summary, "worker-1") || !strings.Contains(summary, "blocked") {
		t.Errorf("expected status summary to mention worker-1 and blocked, got %q", summary)
	}
}

func TestFormatSummaryCombinesAllThree(t *testing.T) {
	b := testBus(t)
	b.WriteNote(models.SharedNote{WorkerID: "worker-1", Topic: "t", Content: "c"})
	b.SendMessage(models.Message{FromWorker: "worker-1", ToWorker: "worker-2", Topic: "t", Content: "c", Type: models.MessageInfo})
	b.WriteStatus(models.WorkerPeerStatus{WorkerID: "worker-1", Status: models.PeerDone})

	summary, err := b.FormatSummary()
	if err != nil {
		t.Fatalf("FormatSummary: %v", err)
	}
	for _, want := range []string{"Worker Notes", "Inter-Worker Messages", "Worker Status"} {
		if !strings.Contains(summary, want) {
			t.Errorf("expected combined summary to contain %q, got %q", want, summary)
		}
	}
}

func TestEmptyBusProducesEmptySummary(t *testing.T) {
	b := testBus(t)
	summary, err := b.FormatSummary()
	if err != nil {
		t.Fatalf("FormatSummary: %v", err)
	}
	if summary != "" {
		t.Errorf("expected empty summary for empty bus, got %q", summary)
	}
}

func TestCleanupRemovesDirectory(t *testing.T) {
	b := testBus(t)
	b.WriteNote(models.SharedNote{WorkerID: "worker-1", Topic: "t", Content: "c"})
	if err := b.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	notes, err := b.ReadAllNotes()
	if err != nil {
		t.Fatalf("ReadAllNotes after cleanup: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("expected no notes after cleanup, got %v", notes)
	}
}
