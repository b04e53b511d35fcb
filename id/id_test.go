package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/zeni/ledgerflow/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ObligationID", id.NewObligationID, "obl_"},
		{"InvitationID", id.NewInvitationID, "inv_"},
		{"RunID", id.NewRunID, "wfrun_"},
		{"CheckpointID", id.NewCheckpointID, "ckpt_"},
		{"TransactionID", id.NewTransactionID, "txn_"},
		{"MessageID", id.NewMessageID, "msg_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"ObligationID", id.NewObligationID, id.ParseObligationID},
		{"InvitationID", id.NewInvitationID, id.ParseInvitationID},
		{"RunID", id.NewRunID, id.ParseRunID},
		{"CheckpointID", id.NewCheckpointID, id.ParseCheckpointID},
		{"TransactionID", id.NewTransactionID, id.ParseTransactionID},
		{"MessageID", id.NewMessageID, id.ParseMessageID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseObligationID(id.NewRunID().String()); err == nil {
		t.Error("expected ParseObligationID to reject a run id")
	}
	if _, err := id.ParseRunID(id.NewCheckpointID().String()); err == nil {
		t.Error("expected ParseRunID to reject a checkpoint id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID    id.ID `json:"id"`
		Empty id.ID `json:"empty"`
	}
	original := wrapper{ID: id.NewObligationID()}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var restored wrapper
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if restored.ID.String() != original.ID.String() {
		t.Errorf("mismatch: %q != %q", restored.ID.String(), original.ID.String())
	}
	if !restored.Empty.IsNil() {
		t.Error("expected empty id to decode as Nil")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewTransactionID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
	if err := scanned2.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewRunID()
	b := id.NewRunID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewRunID() calls returned the same ID: %q", a.String())
	}
}

func TestDerive(t *testing.T) {
	a := id.Derive(id.PrefixMessage, "wfrun_01h2xcejqtf2nbrexx3vqjhp41/remind")
	b := id.Derive(id.PrefixMessage, "wfrun_01h2xcejqtf2nbrexx3vqjhp41/remind")
	c := id.Derive(id.PrefixMessage, "wfrun_01h2xcejqtf2nbrexx3vqjhp41/decide")

	if a.String() != b.String() {
		t.Errorf("same key derived %q and %q", a, b)
	}
	if a.String() == c.String() {
		t.Errorf("different keys derived the same ID %q", a)
	}
	if a.Prefix() != id.PrefixMessage {
		t.Errorf("prefix = %q, want %q", a.Prefix(), id.PrefixMessage)
	}

	parsed, err := id.ParseMessageID(a.String())
	if err != nil {
		t.Fatalf("derived ID does not parse: %v", err)
	}
	if parsed.String() != a.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed, a)
	}
}
