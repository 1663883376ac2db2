package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"limscore/pkg/domain"
)

// MintOptions carries the optional fields accepted by Minter.Mint.
type MintOptions struct {
	SampleType  string
	SiteHint    string
	IncludeDate bool
	IncludeSeq  bool
}

// ParsedBarcode is the best-effort decomposition returned by Minter.Parse.
type ParsedBarcode struct {
	Prefix     string
	SampleType string
	Date       string
	Site       string
	Sequence   string
}

// Minter implements C1: deterministic, collision-resistant barcode minting
// plus validation, parsing, and a reservation set used by batch and test
// flows to claim a barcode before it is persisted.
type Minter struct {
	prefix    string
	separator string
	minLength int

	mu        sync.Mutex
	reserved  map[string]struct{}
	sequences map[string]int
	now       func() time.Time
}

// NewMinter constructs a Minter. prefix defaults to "LAB", separator to "-",
// minLength to 10, matching the documented configuration defaults.
func NewMinter(prefix, separator string, minLength int, now func() time.Time) *Minter {
	if prefix == "" {
		prefix = "LAB"
	}
	if separator == "" {
		separator = "-"
	}
	if minLength <= 0 {
		minLength = 10
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Minter{
		prefix:    prefix,
		separator: separator,
		minLength: minLength,
		reserved:  make(map[string]struct{}),
		sequences: make(map[string]int),
		now:       now,
	}
}

const maxMintAttempts = 10

// Mint generates a barcode unique against the in-process reservation set.
// Callers that also require persistence-layer uniqueness (the normal case)
// should additionally check the store and retry, as Service.mintUniqueBarcode
// does.
func (m *Minter) Mint(opts MintOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dateKey := ""
	if opts.IncludeDate {
		dateKey = m.now().Format("20060102")
	}
	seqScope := m.prefix + "|" + dateKey

	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		candidate, seq := m.buildCandidate(opts, dateKey, seqScope, attempt)
		if _, taken := m.reserved[candidate]; taken {
			continue
		}
		m.reserved[candidate] = struct{}{}
		if opts.IncludeSeq {
			m.sequences[seqScope] = seq
		}
		return candidate, nil
	}
	return "", domain.ExhaustedError{Operation: "mint_barcode", Attempts: maxMintAttempts}
}

// MintBatch mints n barcodes in one call, the pattern used by bulk sample
// intake. It stops and returns what it has minted so far, plus the error, as
// soon as any individual Mint fails (the reservation set already holds every
// code minted before the failure, so a retry cannot collide with them).
func (m *Minter) MintBatch(n int, opts MintOptions) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		code, err := m.Mint(opts)
		if err != nil {
			return codes, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func (m *Minter) buildCandidate(opts MintOptions, dateKey, seqScope string, attempt int) (string, int) {
	parts := []string{m.prefix}
	if opts.SampleType != "" {
		parts = append(parts, opts.SampleType)
	}
	if dateKey != "" {
		parts = append(parts, dateKey)
	}
	if opts.SiteHint != "" {
		parts = append(parts, "L"+opts.SiteHint)
	}
	seq := m.sequences[seqScope] + 1
	if opts.IncludeSeq {
		parts = append(parts, strconv.Itoa(seq))
	}
	candidate := strings.Join(parts, m.separator)
	if len(candidate) < m.minLength || attempt > 0 {
		tail := randomHex(4 + attempt)
		candidate = strings.Join(append(append([]string{}, parts...), tail), m.separator)
	}
	return candidate, seq
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Validate reports whether b satisfies the length and character-class
// constraints shared by every minted or externally supplied barcode.
func (m *Minter) Validate(b string) error {
	if len(b) < m.minLength || len(b) > 50 {
		return domain.ValidationError{Field: "barcode", Message: fmt.Sprintf("length %d outside [%d, 50]", len(b), m.minLength)}
	}
	for _, r := range b {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return domain.ValidationError{Field: "barcode", Message: fmt.Sprintf("illegal character %q", r)}
		}
	}
	return nil
}

// Parse best-effort decomposes b into its logical fields. It never fails;
// fields it cannot confidently identify are left empty.
func (m *Minter) Parse(b string) ParsedBarcode {
	segments := strings.Split(b, m.separator)
	parsed := ParsedBarcode{}
	if len(segments) == 0 {
		return parsed
	}
	parsed.Prefix = segments[0]
	for _, seg := range segments[1:] {
		switch {
		case len(seg) == 8 && isAllDigits(seg):
			parsed.Date = seg
		case strings.HasPrefix(seg, "L") && len(seg) > 1:
			parsed.Site = seg[1:]
		case isAllDigits(seg):
			parsed.Sequence = seg
		case parsed.SampleType == "":
			parsed.SampleType = seg
		}
	}
	return parsed
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Reserve claims b against the in-process reservation set so a subsequent
// Mint call will not regenerate it. Used by batch-import and test flows that
// pre-allocate barcodes before creating the owning Sample.
func (m *Minter) Reserve(b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved[b] = struct{}{}
}

// Release frees a previously reserved barcode.
func (m *Minter) Release(b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, b)
}
