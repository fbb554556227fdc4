// Package dataset reads the JSONL corpus of natural-language requirements,
// state machines and reference Solidity used for sampling and evaluation.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
)

const maxLineBytes = 8 * 1024 * 1024

var ErrOutOfRange = errors.New("dataset: index out of range")

// Entry is one requirement with its reference implementation.
type Entry struct {
	Index       int    `json:"index"`
	Requirement string `json:"requirement"`
	FSM         string `json:"fsm,omitempty"`
	Code        string `json:"code"`
	Version     string `json:"version,omitempty"`
}

// rawEntry accepts the field spellings seen across dataset exports.
type rawEntry struct {
	UserRequirement string          `json:"user_requirement"`
	Requirement     string          `json:"requirement"`
	Description     string          `json:"description"`
	FSMUpper        json.RawMessage `json:"FSM"`
	FSM             json.RawMessage `json:"fsm"`
	Code            string          `json:"code"`
	Solidity        string          `json:"solidity"`
	Version         string          `json:"version"`
}

func (r rawEntry) entry() Entry {
	return Entry{
		Requirement: strings.TrimSpace(firstNonEmpty(r.UserRequirement, r.Requirement, r.Description)),
		FSM:         rawText(firstRaw(r.FSMUpper, r.FSM)),
		Code:        strings.TrimSpace(firstNonEmpty(r.Code, r.Solidity)),
		Version:     r.Version,
	}
}

type Reader struct {
	scanner *bufio.Scanner
	line    int
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Reader{scanner: scanner}
}

// Next returns the next non-blank entry, or io.EOF.
func (r *Reader) Next() (Entry, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var raw rawEntry
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return Entry{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return raw.entry(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return Entry{}, err
	}
	return Entry{}, io.EOF
}

// Dataset is an in-memory, read-only corpus. It is safe for concurrent use.
type Dataset struct {
	entries []Entry
	skipped int
}

// ReadAll loads every entry that has a requirement; others are counted as
// skipped.
func ReadAll(r io.Reader) (*Dataset, error) {
	reader := NewReader(r)
	ds := &Dataset{}
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return ds, nil
		}
		if err != nil {
			return nil, err
		}
		if e.Requirement == "" {
			ds.skipped++
			continue
		}
		e.Index = len(ds.entries)
		ds.entries = append(ds.entries, e)
	}
}

func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return ds, nil
}

func (d *Dataset) Len() int     { return len(d.entries) }
func (d *Dataset) Skipped() int { return d.skipped }

func (d *Dataset) Get(i int) (Entry, error) {
	if i < 0 || i >= len(d.entries) {
		return Entry{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(d.entries))
	}
	return d.entries[i], nil
}

// Sample returns n distinct entries chosen with rng, or every entry when n
// is at least Len. A nil rng uses the global source.
func (d *Dataset) Sample(n int, rng *rand.Rand) []Entry {
	if n <= 0 {
		return []Entry{}
	}
	perm := permutation(len(d.entries), rng)
	if n > len(perm) {
		n = len(perm)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = d.entries[perm[i]]
	}
	return out
}

func permutation(n int, rng *rand.Rand) []int {
	if rng == nil {
		return rand.Perm(n)
	}
	return rng.Perm(n)
}

// Search returns up to limit entries whose requirement contains every word
// of query, case-insensitively. limit <= 0 means no limit.
func (d *Dataset) Search(query string, limit int) []Entry {
	words := strings.Fields(strings.ToLower(query))
	out := []Entry{}
	for _, e := range d.entries {
		req := strings.ToLower(e.Requirement)
		match := true
		for _, w := range words {
			if !strings.Contains(req, w) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

// rawText unwraps a JSON string, or returns other JSON values verbatim.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}
