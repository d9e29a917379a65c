package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"triggerpay/internal/model"
)

// JsonlStorage appends attestations to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutAttestations appends a batch of attestations as JSON lines.
func (s *JsonlStorage) PutAttestations(_ context.Context, atts []model.Attestation) error {
	if len(atts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]any, len(atts))
	for i := range atts {
		lines[i] = atts[i]
	}
	return appendLines(s.path, lines)
}

// journalEntry is one line of the file journal.
type journalEntry struct {
	Event      string                  `json:"event"`
	TriggerID  string                  `json:"trigger_id"`
	Submission *model.PayoutSubmission `json:"submission,omitempty"`
	Outcome    model.JournalOutcome    `json:"outcome,omitempty"`
}

const (
	eventSubmitted = "submitted"
	eventResolved  = "resolved"
)

// FileJournal is an append-only JSONL payout journal. The pending set is
// rebuilt by replaying the file on open, so it survives restarts.
type FileJournal struct {
	path string

	mu      sync.Mutex
	pending map[string]model.PayoutSubmission
}

// OpenFileJournal replays path (if present) and returns the journal.
func OpenFileJournal(path string) (*FileJournal, error) {
	j := &FileJournal{path: path, pending: make(map[string]model.PayoutSubmission)}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return j, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	if err := j.replay(file); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) replay(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("parse journal line %d: %w", line, err)
		}
		switch entry.Event {
		case eventSubmitted:
			if entry.Submission == nil {
				return fmt.Errorf("journal line %d: submission missing", line)
			}
			j.pending[entry.TriggerID] = *entry.Submission
		case eventResolved:
			delete(j.pending, entry.TriggerID)
		default:
			return fmt.Errorf("journal line %d: unknown event %q", line, entry.Event)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	return nil
}

func (j *FileJournal) Pending(_ context.Context, triggerID string) (model.PayoutSubmission, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	sub, ok := j.pending[triggerID]
	return sub, ok, nil
}

// RecordSubmitted durably appends sub before updating the in-memory view.
func (j *FileJournal) RecordSubmitted(_ context.Context, sub model.PayoutSubmission) error {
	if sub.TriggerID == "" {
		return fmt.Errorf("submission trigger id required")
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := journalEntry{Event: eventSubmitted, TriggerID: sub.TriggerID, Submission: &sub}
	if err := appendLines(j.path, []any{entry}); err != nil {
		return err
	}
	j.pending[sub.TriggerID] = sub
	return nil
}

func (j *FileJournal) Resolve(_ context.Context, triggerID string, outcome model.JournalOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.pending[triggerID]; !ok {
		return nil
	}
	entry := journalEntry{Event: eventResolved, TriggerID: triggerID, Outcome: outcome}
	if err := appendLines(j.path, []any{entry}); err != nil {
		return err
	}
	delete(j.pending, triggerID)
	return nil
}

// appendLines writes values as JSON lines and fsyncs the file.
func appendLines(path string, values []any) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, v := range values {
		line, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	return nil
}
