// Package builder implements C7: assembling phrases.daac, payloads.bin,
// and manifest.json from a validated phrase stream.
package builder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/praetorian-labs/phrasematch/internal/automaton"
	"github.com/praetorian-labs/phrasematch/internal/logger"
	"github.com/praetorian-labs/phrasematch/internal/manifest"
	"github.com/praetorian-labs/phrasematch/internal/matcherrors"
	"github.com/praetorian-labs/phrasematch/internal/payload"
	"github.com/praetorian-labs/phrasematch/internal/tokenstream"
)

// Phrase is one input record from the mining/scoring pipeline.
type Phrase struct {
	Tokens   []uint32
	PhraseID uint32
	Salience float32
	Count    uint32
}

// Config holds the build-time settings spec section 4.7 lists.
type Config struct {
	Version           string
	Tokenizer         string
	SeparatorID       uint32
	MinCount          *uint32
	SalienceThreshold *float32
}

// Result reports the builder's aggregate counters (spec 4.7: "must emit
// aggregate counters: inputs seen, filtered by each rule, and patterns
// built").
type Result struct {
	InputsSeen          int
	FilteredEmpty       int
	FilteredSeparator   int
	FilteredDuplicateID int
	FilteredMinCount    int
	FilteredSalience    int
	PatternsBuilt       int
}

// DedupLedger tracks phrase ids seen so far during a build, so Build can
// reject duplicates in rule order (spec 4.7 step 1). The in-memory map
// implementation is always correct; a bbolt-backed implementation
// (NewDiskLedger) trades memory for disk I/O when the phrase stream is too
// large to hold the seen-id set in RAM.
type DedupLedger interface {
	// SeenOrMark returns true if id was already marked, else marks it and
	// returns false.
	SeenOrMark(id uint32) bool
	// Close releases any resources the ledger holds.
	Close() error
}

// Build validates phrases against cfg, encodes survivors via tokenstream,
// builds the automaton, and writes phrases.daac / payloads.bin /
// manifest.json to outDir. Surviving phrases keep their insertion order as
// their pattern index.
func Build(phrases []Phrase, cfg Config, outDir string, ledger DedupLedger, log *logger.Logger) (Result, error) {
	var result Result

	if cfg.SeparatorID == 0 {
		return result, matcherrors.New(matcherrors.Invariant, "build config separator_id must be non-zero")
	}

	if ledger == nil {
		ledger = newMemoryLedger()
	}
	defer ledger.Close() //nolint:errcheck // best-effort cleanup; build already has its own error path

	var patternBytes [][]byte
	var records []payload.Record

	for _, p := range phrases {
		result.InputsSeen++

		if len(p.Tokens) == 0 {
			result.FilteredEmpty++
			continue
		}
		if tokenstream.ContainsSeparator(p.Tokens, cfg.SeparatorID) {
			result.FilteredSeparator++
			continue
		}
		if ledger.SeenOrMark(p.PhraseID) {
			result.FilteredDuplicateID++
			continue
		}
		if cfg.MinCount != nil && p.Count < *cfg.MinCount {
			result.FilteredMinCount++
			continue
		}
		if cfg.SalienceThreshold != nil && p.Salience < *cfg.SalienceThreshold {
			result.FilteredSalience++
			continue
		}
		if len(p.Tokens) > 255 {
			return result, matcherrors.New(matcherrors.Invariant, "phrase_id %d: pattern length %d exceeds 255 tokens", p.PhraseID, len(p.Tokens))
		}

		patternBytes = append(patternBytes, tokenstream.Encode(p.Tokens, cfg.SeparatorID))
		records = append(records, payload.Record{
			PhraseID: p.PhraseID,
			Salience: p.Salience,
			Count:    p.Count,
			N:        uint8(len(p.Tokens)),
		})
	}

	if len(patternBytes) == 0 {
		return result, matcherrors.New(matcherrors.Invariant, "no surviving phrases to build an automaton from")
	}

	auto, err := automaton.Build(patternBytes)
	if err != nil {
		return result, err
	}
	result.PatternsBuilt = len(patternBytes)

	if err := os.MkdirAll(outDir, 0o755); err != nil { //nolint:gosec // output directory from trusted build config
		return result, matcherrors.Wrap(matcherrors.IO, outDir, err)
	}

	blob, err := auto.Serialize()
	if err != nil {
		return result, err
	}
	if err := atomicWrite(filepath.Join(outDir, "phrases.daac"), blob); err != nil {
		return result, err
	}

	if err := writePayloads(filepath.Join(outDir, "payloads.bin"), records); err != nil {
		return result, err
	}

	m := manifest.New(cfg.Version, cfg.Tokenizer, uint64(len(records)), cfg.SeparatorID, cfg.MinCount, cfg.SalienceThreshold)
	if err := manifest.Save(filepath.Join(outDir, "manifest.json"), m); err != nil {
		return result, err
	}

	if log != nil {
		log.Counts("build", []logger.Counter{
			{Name: "inputs", Value: result.InputsSeen},
			{Name: "built", Value: result.PatternsBuilt},
			{Name: "filtered_empty", Value: result.FilteredEmpty},
			{Name: "filtered_separator", Value: result.FilteredSeparator},
			{Name: "filtered_dup", Value: result.FilteredDuplicateID},
			{Name: "filtered_min_count", Value: result.FilteredMinCount},
			{Name: "filtered_salience", Value: result.FilteredSalience},
		})
	}

	return result, nil
}

// writePayloads writes records in order, 17 bytes each, atomically.
func writePayloads(path string, records []payload.Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".payloads-*.tmp")
	if err != nil {
		return matcherrors.Wrap(matcherrors.IO, path, err)
	}
	tmpName := tmp.Name()

	for _, r := range records {
		if err := payload.WriteOne(tmp, r); err != nil {
			tmp.Close()        //nolint:errcheck // best-effort cleanup on write failure
			os.Remove(tmpName) //nolint:errcheck // tmpName from os.CreateTemp, not user input
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // tmpName from os.CreateTemp, not user input
		return matcherrors.Wrap(matcherrors.IO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // tmpName from os.CreateTemp, not user input
		return matcherrors.Wrap(matcherrors.IO, path, err)
	}
	return nil
}

// atomicWrite writes data to path via a temp-file-then-rename, the same
// pattern the teacher's domain registry uses for its persisted state.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return matcherrors.Wrap(matcherrors.IO, path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup on write failure
		os.Remove(tmpName) //nolint:errcheck // tmpName from os.CreateTemp, not user input
		return matcherrors.Wrap(matcherrors.IO, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // tmpName from os.CreateTemp, not user input
		return matcherrors.Wrap(matcherrors.IO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // tmpName from os.CreateTemp, not user input
		return matcherrors.Wrap(matcherrors.IO, path, err)
	}
	return nil
}

// memoryLedger is the default, unbounded in-memory DedupLedger.
type memoryLedger struct {
	seen map[uint32]bool
}

func newMemoryLedger() DedupLedger {
	return &memoryLedger{seen: make(map[uint32]bool)}
}

func (l *memoryLedger) SeenOrMark(id uint32) bool {
	if l.seen[id] {
		return true
	}
	l.seen[id] = true
	return false
}

func (l *memoryLedger) Close() error { return nil }

// String renders cfg for diagnostics.
func (c Config) String() string {
	return fmt.Sprintf("Config{version=%q tokenizer=%q separator_id=%d}", c.Version, c.Tokenizer, c.SeparatorID)
}
