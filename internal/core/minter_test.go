package core

import (
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
}

func TestMinterMintProducesValidBarcode(t *testing.T) {
	m := NewMinter("LAB", "-", 10, fixedNow)
	code, err := m.Mint(MintOptions{SampleType: "BLD", IncludeDate: true, IncludeSeq: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Validate(code); err != nil {
		t.Fatalf("minted barcode failed validation: %v", err)
	}
	if !strings.HasPrefix(code, "LAB-BLD-20260305") {
		t.Fatalf("expected prefix LAB-BLD-20260305, got %s", code)
	}
}

func TestMinterMintDefaults(t *testing.T) {
	m := NewMinter("", "", 0, nil)
	code, err := m.Mint(MintOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(code, "LAB-") {
		t.Fatalf("expected default prefix LAB-, got %s", code)
	}
	if len(code) < 10 {
		t.Fatalf("expected minted barcode to satisfy default min length 10, got %q", code)
	}
}

func TestMinterMintNeverRepeatsReservedCode(t *testing.T) {
	m := NewMinter("LAB", "-", 10, fixedNow)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := m.Mint(MintOptions{})
		if err != nil {
			t.Fatalf("mint %d: unexpected error: %v", i, err)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("minted duplicate barcode %s", code)
		}
		seen[code] = struct{}{}
	}
}

func TestMinterReserveBlocksFutureCollisions(t *testing.T) {
	m := NewMinter("LAB", "-", 10, fixedNow)
	reserved := "LAB-RESERVED-1"
	m.Reserve(reserved)
	if _, taken := m.reserved[reserved]; !taken {
		t.Fatalf("expected barcode to be tracked as reserved")
	}
	m.Release(reserved)
	if _, stillTaken := m.reserved[reserved]; stillTaken {
		t.Fatalf("expected barcode to be released")
	}
}

func TestMinterValidateRejectsBadInput(t *testing.T) {
	m := NewMinter("LAB", "-", 10, fixedNow)
	cases := []struct {
		name    string
		barcode string
		wantErr bool
	}{
		{"too short", "LAB-1", true},
		{"illegal char", "LAB-SAMPLE!!", true},
		{"valid", "LAB-SAMPLE01", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Validate(tc.barcode)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.barcode)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.barcode, err)
			}
		})
	}
}

func TestMinterMintBatchProducesDistinctCodes(t *testing.T) {
	m := NewMinter("LAB", "-", 10, fixedNow)
	codes, err := m.MintBatch(5, MintOptions{SampleType: "BLD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(codes) != 5 {
		t.Fatalf("expected 5 codes, got %d", len(codes))
	}
	seen := make(map[string]struct{})
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			t.Fatalf("minted duplicate barcode %s in batch", code)
		}
		seen[code] = struct{}{}
	}
}

func TestMinterMintBatchZeroReturnsNil(t *testing.T) {
	m := NewMinter("LAB", "-", 10, fixedNow)
	codes, err := m.MintBatch(0, MintOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codes != nil {
		t.Fatalf("expected nil slice for n=0, got %v", codes)
	}
}

func TestMinterParseDecomposesSegments(t *testing.T) {
	m := NewMinter("LAB", "-", 10, fixedNow)
	parsed := m.Parse("LAB-BLD-20260305-L4-12")
	if parsed.Prefix != "LAB" {
		t.Fatalf("expected prefix LAB, got %s", parsed.Prefix)
	}
	if parsed.SampleType != "BLD" {
		t.Fatalf("expected sample type BLD, got %s", parsed.SampleType)
	}
	if parsed.Date != "20260305" {
		t.Fatalf("expected date 20260305, got %s", parsed.Date)
	}
	if parsed.Site != "4" {
		t.Fatalf("expected site 4, got %s", parsed.Site)
	}
	if parsed.Sequence != "12" {
		t.Fatalf("expected sequence 12, got %s", parsed.Sequence)
	}
}
