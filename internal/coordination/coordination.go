// Package coordination implements the swarm's coordination bus: a set of
// JSON files under .swarm/coordination/<run_id>/ that let concurrent worker
// agents share notes, send each other directed messages, and report their
// own progress, without ever touching each other's worktrees.
package coordination

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/harrison/swarm/internal/filelock"
	"github.com/harrison/swarm/internal/models"
)

// Bus manages the coordination directory for a single run.
//
// Layout:
//
//	.swarm/coordination/<run_id>/
//	    notes/                     one JSON file per worker
//	    messages/<worker_id>/      per-worker inbox, NNN-from-<sender>.json
//	    status/<worker_id>.json    self-reported progress
type Bus struct {
	baseDir string
}

// NewBus returns a Bus rooted at repoPath for the given run.
func NewBus(repoPath, runID string) *Bus {
	return &Bus{baseDir: filepath.Join(repoPath, ".swarm", "coordination", runID)}
}

func (b *Bus) notesDir() string    { return filepath.Join(b.baseDir, "notes") }
func (b *Bus) messagesDir() string { return filepath.Join(b.baseDir, "messages") }
func (b *Bus) statusDir() string   { return filepath.Join(b.baseDir, "status") }

// Dir returns the run's coordination directory, for handing to worker
// agents so they can read/write notes, messages, and status themselves.
func (b *Bus) Dir() string { return b.baseDir }

// Setup creates the coordination directories, including a pre-made empty
// inbox for each worker id so agents never need to mkdir their own inbox.
func (b *Bus) Setup(workerIDs []string) error {
	for _, dir := range []string{b.notesDir(), b.messagesDir(), b.statusDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("coordination setup: %w", err)
		}
	}
	for _, id := range workerIDs {
		if err := os.MkdirAll(filepath.Join(b.messagesDir(), id), 0o755); err != nil {
			return fmt.Errorf("coordination setup inbox %s: %w", id, err)
		}
	}
	return nil
}

// -- Notes --

// WriteNote writes (or overwrites) a worker's shared note.
func (b *Bus) WriteNote(note models.SharedNote) error {
	path := filepath.Join(b.notesDir(), note.WorkerID+".json")
	return filelock.LockAndWriteJSON(path, note)
}

// ReadNote reads a single worker's note. Returns nil, nil if missing or
// invalid — a malformed note never aborts the run.
func (b *Bus) ReadNote(workerID string) (*models.SharedNote, error) {
	path := filepath.Join(b.notesDir(), workerID+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var note models.SharedNote
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, nil
	}
	return &note, nil
}

// ReadAllNotes reads every valid note, ordered by worker id.
func (b *Bus) ReadAllNotes() ([]models.SharedNote, error) {
	ids, err := jsonStems(b.notesDir())
	if err != nil {
		return nil, err
	}
	var notes []models.SharedNote
	for _, id := range ids {
		note, err := b.ReadNote(id)
		if err != nil {
			return nil, err
		}
		if note != nil {
			notes = append(notes, *note)
		}
	}
	return notes, nil
}

// FormatNotesSummary renders every note as a Markdown section.
func (b *Bus) FormatNotesSummary() (string, error) {
	notes, err := b.ReadAllNotes()
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Worker Notes\n\n")
	for _, n := range notes {
		tags := ""
		if len(n.Tags) > 0 {
			tags = fmt.Sprintf(" [%s]", strings.Join(n.Tags, ", "))
		}
		fmt.Fprintf(&sb, "### %s: %s%s\n\n", n.WorkerID, n.Topic, tags)
		fmt.Fprintf(&sb, "%s\n\n", n.Content)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n", nil
}

// -- Messages --

// SendMessage appends a message to the recipient's inbox, numbering files
// sequentially so readers can replay them in send order.
func (b *Bus) SendMessage(msg models.Message) error {
	inbox := filepath.Join(b.messagesDir(), msg.ToWorker)
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return err
	}
	existing, err := jsonFiles(inbox)
	if err != nil {
		return err
	}
	seq := len(existing) + 1
	name := fmt.Sprintf("%03d-from-%s.json", seq, msg.FromWorker)
	return filelock.LockAndWriteJSON(filepath.Join(inbox, name), msg)
}

// ReadInbox returns every message delivered to workerID, in send order.
func (b *Bus) ReadInbox(workerID string) ([]models.Message, error) {
	inbox := filepath.Join(b.messagesDir(), workerID)
	names, err := jsonFiles(inbox)
	if err != nil {
		return nil, err
	}
	var out []models.Message
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(inbox, name))
		if err != nil {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// ReadAllMessages returns every message across every inbox, grouped by
// inbox (worker id) in directory order.
func (b *Bus) ReadAllMessages() ([]models.Message, error) {
	entries, err := os.ReadDir(b.messagesDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []models.Message
	for _, id := range names {
		msgs, err := b.ReadInbox(id)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}
	return all, nil
}

// FormatMessagesSummary renders every message as a Markdown section.
func (b *Bus) FormatMessagesSummary() (string, error) {
	msgs, err := b.ReadAllMessages()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Inter-Worker Messages\n\n")
	for _, m := range msgs {
		fmt.Fprintf(&sb, "### %s → %s: %s [%s]\n\n", m.FromWorker, m.ToWorker, m.Topic, m.Type)
		fmt.Fprintf(&sb, "%s\n\n", m.Content)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n", nil
}

// -- Status --

// WriteStatus writes (or overwrites) a worker's self-reported status.
func (b *Bus) WriteStatus(status models.WorkerPeerStatus) error {
	path := filepath.Join(b.statusDir(), status.WorkerID+".json")
	return filelock.LockAndWriteJSON(path, status)
}

// ReadStatus reads a single worker's status.
func (b *Bus) ReadStatus(workerID string) (*models.WorkerPeerStatus, error) {
	path := filepath.Join(b.statusDir(), workerID+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var status models.WorkerPeerStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, nil
	}
	return &status, nil
}

// ReadAllStatuses reads every worker's status, ordered by worker id.
func (b *Bus) ReadAllStatuses() ([]models.WorkerPeerStatus, error) {
	ids, err := jsonStems(b.statusDir())
	if err != nil {
		return nil, err
	}
	var out []models.WorkerPeerStatus
	for _, id := range ids {
		status, err := b.ReadStatus(id)
		if err != nil {
			return nil, err
		}
		if status != nil {
			out = append(out, *status)
		}
	}
	return out, nil
}

// FormatStatusSummary renders every worker's status as a Markdown list.
func (b *Bus) FormatStatusSummary() (string, error) {
	statuses, err := b.ReadAllStatuses()
	if err != nil {
		return "", err
	}
	if len(statuses) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Worker Status\n\n")
	for _, s := range statuses {
		milestone := ""
		if s.Milestone != "" {
			milestone = " — " + s.Milestone
		}
		fmt.Fprintf(&sb, "- **%s**: %s%s\n", s.WorkerID, s.Status, milestone)
		if s.Details != "" {
			fmt.Fprintf(&sb, "  %s\n", s.Details)
		}
	}
	return sb.String(), nil
}

// -- Combined summary --

// FormatSummary combines notes, messages, and status into one Markdown
// digest, handed to the integrator's conflict-resolver and reviewer agents
// as shared context.
func (b *Bus) FormatSummary() (string, error) {
	notes, err := b.FormatNotesSummary()
	if err != nil {
		return "", err
	}
	messages, err := b.FormatMessagesSummary()
	if err != nil {
		return "", err
	}
	status, err := b.FormatStatusSummary()
	if err != nil {
		return "", err
	}
	var parts []string
	for _, p := range []string{notes, messages, status} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// RenderSummaryHTML renders FormatSummary's Markdown digest to a standalone
// HTML fragment, for the run-report artifact written at the end of a run.
// An empty digest renders to an empty string rather than an empty <html>
// shell, so callers can skip writing the report file entirely.
func (b *Bus) RenderSummaryHTML() (string, error) {
	digest, err := b.FormatSummary()
	if err != nil {
		return "", err
	}
	if digest == "" {
		return "", nil
	}
	var buf strings.Builder
	if err := goldmark.Convert([]byte(digest), &buf); err != nil {
		return "", fmt.Errorf("render digest to html: %w", err)
	}
	return buf.String(), nil
}

// Cleanup removes the run's entire coordination directory.
func (b *Bus) Cleanup() error {
	if _, err := os.Stat(b.baseDir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(b.baseDir)
}

// jsonStems returns the base names (without .json) of every *.json file in
// dir, sorted, or nil if dir doesn't exist.
func jsonStems(dir string) ([]string, error) {
	names, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}
	stems := make([]string, len(names))
	for i, n := range names {
		stems[i] = strings.TrimSuffix(n, ".json")
	}
	return stems, nil
}

// jsonFiles returns the sorted *.json file names directly in dir.
func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
