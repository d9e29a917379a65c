package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"triggerpay/internal/model"
)

func sampleSubmission(id string, nonce uint64) model.PayoutSubmission {
	return model.PayoutSubmission{
		TriggerID:   id,
		Chain:       model.ChainBase,
		From:        "0x1111111111111111111111111111111111111111",
		To:          "0x2222222222222222222222222222222222222222",
		Amount:      "500000000000000000",
		Nonce:       nonce,
		TxHash:      "0xabc",
		RawTx:       "0x02f8",
		SubmittedAt: 1700000000000000000,
	}
}

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "attestations.jsonl")
	s := NewJsonlStorage(path)

	first := []model.Attestation{{TriggerID: "trig_1", Timestamp: 1, ObservedStatus: "scheduled"}}
	second := []model.Attestation{{TriggerID: "trig_1", Timestamp: 2, ObservedStatus: "cancelled", ConditionMet: true}}
	if err := s.PutAttestations(context.Background(), first); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutAttestations(context.Background(), second); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutAttestations(context.Background(), nil); err != nil {
		t.Fatalf("put empty: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.Attestation
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var att model.Attestation
		if err := json.Unmarshal(scanner.Bytes(), &att); err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, att)
	}
	want := append(first, second...)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines: %+v", got)
	}
}

func TestMemoryArchiveByTrigger(t *testing.T) {
	a := NewMemoryArchive()
	ctx := context.Background()
	_ = a.PutAttestations(ctx, []model.Attestation{
		{TriggerID: "trig_1", Timestamp: 1},
		{TriggerID: "trig_2", Timestamp: 2},
		{TriggerID: "trig_1", Timestamp: 3},
	})

	got, err := a.ListAttestations(ctx, "trig_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Timestamp != 1 || got[1].Timestamp != 3 {
		t.Fatalf("unexpected attestations: %+v", got)
	}
	got[0].Timestamp = 99
	again, _ := a.ListAttestations(ctx, "trig_1")
	if again[0].Timestamp != 1 {
		t.Fatalf("list returned shared slice")
	}
	if none, _ := a.ListAttestations(ctx, "missing"); len(none) != 0 {
		t.Fatalf("expected empty list, got %+v", none)
	}
}

func TestTeeArchiveMirrors(t *testing.T) {
	primary := NewMemoryArchive()
	mirror := NewMemoryArchive()
	tee := &TeeArchive{Primary: primary, Mirrors: []AttestationSink{mirror}}

	ctx := context.Background()
	if err := tee.PutAttestations(ctx, []model.Attestation{{TriggerID: "trig_1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got, _ := mirror.ListAttestations(ctx, "trig_1"); len(got) != 1 {
		t.Fatalf("mirror not written")
	}
	if got, _ := tee.ListAttestations(ctx, "trig_1"); len(got) != 1 {
		t.Fatalf("primary not read")
	}
}

func testJournal(t *testing.T, j PayoutJournal) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := j.Pending(ctx, "trig_1"); err != nil || ok {
		t.Fatalf("expected nothing pending, ok=%v err=%v", ok, err)
	}

	sub := sampleSubmission("trig_1", 7)
	if err := j.RecordSubmitted(ctx, sub); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, ok, err := j.Pending(ctx, "trig_1")
	if err != nil || !ok || !reflect.DeepEqual(got, sub) {
		t.Fatalf("pending = %+v ok=%v err=%v", got, ok, err)
	}

	replacement := sampleSubmission("trig_1", 8)
	if err := j.RecordSubmitted(ctx, replacement); err != nil {
		t.Fatalf("record replacement: %v", err)
	}
	if got, _, _ := j.Pending(ctx, "trig_1"); got.Nonce != 8 {
		t.Fatalf("replacement not pending: %+v", got)
	}

	if err := j.Resolve(ctx, "trig_1", model.JournalConfirmed); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok, _ := j.Pending(ctx, "trig_1"); ok {
		t.Fatalf("resolved entry still pending")
	}
	if err := j.Resolve(ctx, "trig_1", model.JournalConfirmed); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if err := j.RecordSubmitted(ctx, model.PayoutSubmission{}); err == nil {
		t.Fatalf("expected error for empty trigger id")
	}
}

func TestMemoryJournal(t *testing.T) {
	testJournal(t, NewMemoryJournal())
}

func TestFileJournal(t *testing.T) {
	j, err := OpenFileJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	testJournal(t, j)
}

func TestFileJournalReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	ctx := context.Background()

	j, err := OpenFileJournal(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = j.RecordSubmitted(ctx, sampleSubmission("trig_1", 1))
	_ = j.RecordSubmitted(ctx, sampleSubmission("trig_2", 2))
	_ = j.Resolve(ctx, "trig_1", model.JournalConfirmed)

	reopened, err := OpenFileJournal(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok, _ := reopened.Pending(ctx, "trig_1"); ok {
		t.Fatalf("resolved entry resurrected on replay")
	}
	got, ok, _ := reopened.Pending(ctx, "trig_2")
	if !ok || got.Nonce != 2 {
		t.Fatalf("pending entry lost on replay: %+v ok=%v", got, ok)
	}
}

func TestFileJournalRejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	if err := os.WriteFile(path, []byte("{\"event\":\"submitted\",\"trigger_id\":\"trig_1\"}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := OpenFileJournal(path); err == nil {
		t.Fatalf("expected error for submission without payload")
	}
}
