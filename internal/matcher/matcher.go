// Package matcher implements C6, the long-lived facade serving-time
// callers hold onto: Load, MatchTokens, Stats, Healthcheck. A loaded
// Matcher is immutable; any number of callers may share it and call
// MatchTokens concurrently without synchronization.
package matcher

import (
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	mmap "github.com/edsrzf/mmap-go"

	"github.com/praetorian-labs/phrasematch/internal/automaton"
	"github.com/praetorian-labs/phrasematch/internal/logger"
	"github.com/praetorian-labs/phrasematch/internal/manifest"
	"github.com/praetorian-labs/phrasematch/internal/match"
	"github.com/praetorian-labs/phrasematch/internal/matcherrors"
	"github.com/praetorian-labs/phrasematch/internal/payload"
	"github.com/praetorian-labs/phrasematch/internal/tokenstream"
)

// histMinUs/histMaxUs/histSigFigs bound the HdrHistogram used for match
// latency: 1 microsecond (faster calls are recorded as 1) to 10 seconds,
// 3 significant figures is the library's usual default for request-latency
// tracking.
const (
	histMinUs   = 1
	histMaxUs   = 10_000_000
	histSigFigs = 3
)

// heapMB reports current heap usage, for the stats() heap_mb field.
func heapMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}

// Stats is a point-in-time observability snapshot (spec 4.6 stats()).
type Stats struct {
	Version         string
	LoadedAt        time.Time
	NumPatterns     int
	HeapMB          float64
	HitsTotal       int64
	CorruptionDrops int64
	P50Us           int64
	P95Us           int64
	P99Us           int64
}

// Matcher is the loaded, immutable artifact set plus mutable observability
// counters. The four artifact fields (automaton, payloads, manifest,
// loadedAt) never change after Load returns; only the counters below are
// mutated, and they use atomics (hit and corruption counts) or histMu (the
// latency histogram) so no reader lock is needed around MatchTokens.
type Matcher struct {
	automaton *automaton.Automaton
	payloads  []payload.Record
	manifest  *manifest.Manifest
	loadedAt  time.Time

	mmapHandle mmap.MMap // non-nil only when loaded via LoadMmap

	log *logger.Logger

	hitsTotal       atomic.Int64
	corruptionDrops atomic.Int64
	histMu          sync.Mutex
	hist            *hdrhistogram.WindowedHistogram
}

// Load reads automatonPath/payloadsPath/manifestPath fully into memory and
// returns a ready-to-use Matcher. Load failures are fatal to the caller:
// the returned Matcher is always nil on error, never half-initialized.
func Load(automatonPath, payloadsPath, manifestPath string, log *logger.Logger) (*Matcher, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(automatonPath) //nolint:gosec // operator-supplied artifact path
	if err != nil {
		return nil, matcherrors.Wrap(matcherrors.IO, automatonPath, err)
	}
	auto, err := automaton.Deserialize(blob)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(payloadsPath) //nolint:gosec // operator-supplied artifact path
	if err != nil {
		return nil, matcherrors.Wrap(matcherrors.IO, payloadsPath, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle, nothing to flush

	recs, err := payload.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return newMatcher(auto, recs, m, nil, log)
}

// LoadMmap is like Load, but memory-maps payloads.bin instead of reading it
// into a owned slice. The Matcher owns the mapping and unmaps it in Close.
func LoadMmap(automatonPath, payloadsPath, manifestPath string, log *logger.Logger) (*Matcher, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(automatonPath) //nolint:gosec // operator-supplied artifact path
	if err != nil {
		return nil, matcherrors.Wrap(matcherrors.IO, automatonPath, err)
	}
	auto, err := automaton.Deserialize(blob)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(payloadsPath) //nolint:gosec // operator-supplied artifact path
	if err != nil {
		return nil, matcherrors.Wrap(matcherrors.IO, payloadsPath, err)
	}
	defer f.Close() //nolint:errcheck // mmap keeps its own fd-independent mapping

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, matcherrors.Wrap(matcherrors.IO, payloadsPath, err)
	}

	recs, err := payload.ReadAll(&trailingReader{b: mapped})
	if err != nil {
		mapped.Unmap() //nolint:errcheck // best-effort cleanup on load failure
		return nil, err
	}

	return newMatcher(auto, recs, m, mapped, log)
}

// trailingReader adapts a byte slice to io.Reader for payload.ReadAll.
type trailingReader struct{ b []byte }

func (t *trailingReader) Read(p []byte) (int, error) {
	if len(t.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, t.b)
	t.b = t.b[n:]
	return n, nil
}

func newMatcher(auto *automaton.Automaton, recs []payload.Record, m *manifest.Manifest, mapped mmap.MMap, log *logger.Logger) (*Matcher, error) {
	if uint64(len(recs)) != m.NumPatterns {
		return nil, matcherrors.New(matcherrors.Invariant, "payload count %d does not match manifest num_patterns %d", len(recs), m.NumPatterns)
	}
	if uint64(auto.NumPatterns()) != m.NumPatterns {
		return nil, matcherrors.New(matcherrors.Invariant, "automaton pattern count %d does not match manifest num_patterns %d", auto.NumPatterns(), m.NumPatterns)
	}

	mm := &Matcher{
		automaton:  auto,
		payloads:   recs,
		manifest:   m,
		loadedAt:   time.Now(),
		mmapHandle: mapped,
		log:        log,
		hist:       hdrhistogram.NewWindowed(5, histMinUs, histMaxUs, histSigFigs),
	}
	return mm, nil
}

// Close releases the mmap backing, if any. Safe to call on a Matcher
// loaded via Load (no-op).
func (mm *Matcher) Close() error {
	if mm.mmapHandle != nil {
		return mm.mmapHandle.Unmap()
	}
	return nil
}

// MatchTokens encodes tokenIDs (C3), enumerates raw automaton hits (C4),
// filters them through the payload table, resolves overlaps under policy
// (C5), and truncates to at most max results. Returns nil for an empty
// input or when max == 0. The operation never mutates shared matcher
// state beyond its own observability counters and is safe for concurrent
// callers.
func (mm *Matcher) MatchTokens(tokenIDs []uint32, policy match.Policy, max uint32) []match.Match {
	if len(tokenIDs) == 0 || max == 0 {
		return nil
	}

	start := time.Now()
	defer mm.recordLatency(start)

	buf := tokenstream.Encode(tokenIDs, mm.manifest.SeparatorID)

	var raw []match.Match
	it := mm.automaton.FindOverlappingIter(buf)
	for {
		hit, ok := it.Next()
		if !ok {
			break
		}
		mm.hitsTotal.Add(1)
		if hit.Value < 0 || hit.Value >= len(mm.payloads) {
			mm.recordCorruption(hit.Value)
			continue
		}
		rec := mm.payloads[hit.Value]
		startTok, endTok := tokenstream.DecodeOffsets(hit.ByteStart, hit.ByteEnd)
		raw = append(raw, match.Match{
			Start:        startTok,
			End:          endTok,
			PatternIndex: hit.Value,
			Payload:      rec,
		})
	}

	resolved := match.Resolve(raw, policy)
	if uint32(len(resolved)) > max {
		resolved = resolved[:max]
	}
	return resolved
}

func (mm *Matcher) recordCorruption(value int) {
	n := mm.corruptionDrops.Add(1)
	if n == 1 && mm.log != nil {
		mm.log.Warnf("corruption", "raw hit referenced pattern index %d, outside payload table (size %d); dropping and counting, not re-logging further occurrences", value, len(mm.payloads))
	}
}

func (mm *Matcher) recordLatency(start time.Time) {
	us := time.Since(start).Microseconds()
	if us < histMinUs {
		us = histMinUs
	}
	mm.histMu.Lock()
	mm.hist.Current.RecordValue(us) //nolint:errcheck // values are clamped above into histogram range
	mm.histMu.Unlock()
}

// Stats returns a point-in-time snapshot for observability.
func (mm *Matcher) Stats() Stats {
	mm.histMu.Lock()
	snap := mm.hist.Merge()
	mm.histMu.Unlock()
	return Stats{
		Version:         mm.manifest.Version,
		LoadedAt:        mm.loadedAt,
		NumPatterns:     len(mm.payloads),
		HeapMB:          heapMB(),
		HitsTotal:       mm.hitsTotal.Load(),
		CorruptionDrops: mm.corruptionDrops.Load(),
		P50Us:           snap.ValueAtQuantile(50),
		P95Us:           snap.ValueAtQuantile(95),
		P99Us:           snap.ValueAtQuantile(99),
	}
}

// Healthcheck reports true when this Matcher instance was successfully
// loaded (its existence implies this; a nil receiver reports false so
// callers holding an optional *Matcher can check uniformly).
func (mm *Matcher) Healthcheck() bool {
	return mm != nil
}
