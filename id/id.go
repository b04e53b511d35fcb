// Package id defines TypeID-based identity types for ledgerflow entities.
//
// Every entity uses a single ID struct whose prefix names the entity type.
// IDs are K-sortable (UUIDv7-based), globally unique and URL-safe in the
// format "prefix_suffix".
package id

import (
	"crypto/sha256"
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Entity prefixes.
const (
	PrefixObligation  Prefix = "obl"
	PrefixInvitation  Prefix = "inv"
	PrefixRun         Prefix = "wfrun"
	PrefixCheckpoint  Prefix = "ckpt"
	PrefixTransaction Prefix = "txn"
	PrefixMessage     Prefix = "msg"
)

// ID is a prefix-qualified TypeID. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix. It panics on an invalid
// prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "obl_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// Aliases documenting which prefix a field holds.
type (
	ObligationID  = ID
	InvitationID  = ID
	RunID         = ID
	CheckpointID  = ID
	TransactionID = ID
	MessageID     = ID
)

// NewObligationID returns a new ID for a recurring obligation.
func NewObligationID() ID { return New(PrefixObligation) }

// NewInvitationID returns a new ID for a ledger invitation.
func NewInvitationID() ID { return New(PrefixInvitation) }

// NewRunID returns a new ID for a workflow run.
func NewRunID() ID { return New(PrefixRun) }

// NewCheckpointID returns a new ID for a step checkpoint.
func NewCheckpointID() ID { return New(PrefixCheckpoint) }

// NewTransactionID returns a new ID for a posted ledger transaction.
func NewTransactionID() ID { return New(PrefixTransaction) }

// NewMessageID returns a new ID for an outgoing message.
func NewMessageID() ID { return New(PrefixMessage) }

// ParseObligationID parses s and requires the "obl" prefix.
func ParseObligationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixObligation) }

// ParseInvitationID parses s and requires the "inv" prefix.
func ParseInvitationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixInvitation) }

// ParseRunID parses s and requires the "wfrun" prefix.
func ParseRunID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRun) }

// ParseCheckpointID parses s and requires the "ckpt" prefix.
func ParseCheckpointID(s string) (ID, error) { return ParseWithPrefix(s, PrefixCheckpoint) }

// ParseTransactionID parses s and requires the "txn" prefix.
func ParseTransactionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixTransaction) }

// ParseMessageID parses s and requires the "msg" prefix.
func ParseMessageID(s string) (ID, error) { return ParseWithPrefix(s, PrefixMessage) }

// suffixAlphabet is the TypeID base32 alphabet.
const suffixAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Derive returns a stable ID for key: the same prefix and key always yield
// the same ID. The suffix encodes a UUIDv8 built from a SHA-256 of the key.
func Derive(prefix Prefix, key string) ID {
	sum := sha256.Sum256([]byte(string(prefix) + ":" + key))
	var u [16]byte
	copy(u[:], sum[:16])
	u[6] = u[6]&0x0f | 0x80 // version 8
	u[8] = u[8]&0x3f | 0x80 // RFC 9562 variant
	return MustParse(string(prefix) + "_" + encodeSuffix(u))
}

// encodeSuffix writes the 128 bits of u as 26 base32 characters, with two
// leading zero bits of padding.
func encodeSuffix(u [16]byte) string {
	var out [26]byte
	for i := range out {
		var v byte
		for j := range 5 {
			bit := i*5 + j - 2
			v <<= 1
			if bit >= 0 && u[bit/8]&(0x80>>(bit%8)) != 0 {
				v |= 1
			}
		}
		out[i] = suffixAlphabet[v]
	}
	return string(out[:])
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
