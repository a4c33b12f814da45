package db

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func uuidFromBytes(b []uint8) uuid.UUID {
	var id uuid.UUID
	copy(id[:], b)
	return id
}

func TestPartitionName(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	got := PartitionName(id)
	if got != "phc_0f8fad5bd9cb469fa16570867728950e" {
		t.Errorf("unexpected partition name %q", got)
	}
	if !ValidPartitionName(got) {
		t.Errorf("derived name %q should be valid", got)
	}
}

func TestValidPartitionName(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"phc_abc", true},
		{"phc_0f8fad5bd9cb469fa16570867728950e", true},
		{"phc_demo_001", true},
		{"phc_", false},
		{"public", false},
		{"PHC_abc", false},
		{"phc_ABC", false},
		{"phc_a-b", false},
		{"phc_a.b", false},
		{"phc_a b", false},
		{`phc_a";DROP SCHEMA public;--`, false},
		{"", false},
		{"phc_" + strings.Repeat("a", 59), true},
		{"phc_" + strings.Repeat("a", 60), false},
	}
	for _, tt := range tests {
		if got := ValidPartitionName(tt.input); got != tt.valid {
			t.Errorf("ValidPartitionName(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	q, err := quoteIdent("phc_demo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q != `"phc_demo"` {
		t.Errorf("expected quoted identifier, got %s", q)
	}

	if _, err := quoteIdent("phc_demo; DROP TABLE x"); err == nil {
		t.Error("expected error for unsafe name")
	}
}

func TestProperty_PartitionName(t *testing.T) {
	properties := gopter.NewProperties(nil)
	idBytes := gen.SliceOfN(16, gen.UInt8())

	properties.Property("derived names are always valid", prop.ForAll(
		func(b []uint8) bool {
			return ValidPartitionName(PartitionName(uuidFromBytes(b)))
		},
		idBytes,
	))

	properties.Property("derivation is deterministic", prop.ForAll(
		func(b []uint8) bool {
			id := uuidFromBytes(b)
			return PartitionName(id) == PartitionName(id)
		},
		idBytes,
	))

	properties.Property("distinct ids give distinct names", prop.ForAll(
		func(a, b []uint8) bool {
			ida, idb := uuidFromBytes(a), uuidFromBytes(b)
			if ida == idb {
				return true
			}
			return PartitionName(ida) != PartitionName(idb)
		},
		idBytes, idBytes,
	))

	properties.TestingRun(t)
}
