package matcher

import (
	"path/filepath"
	"testing"

	"github.com/praetorian-labs/phrasematch/internal/builder"
	"github.com/praetorian-labs/phrasematch/internal/match"
)

const testSeparator = uint32(4294967294)

// buildAndLoad runs the builder against phrases and loads the resulting
// artifact set, the same round trip a production deployment does between
// phrasebuild and phrasematchd.
func buildAndLoad(t *testing.T, phrases []builder.Phrase) *Matcher {
	t.Helper()
	dir := t.TempDir()
	cfg := builder.Config{Version: "test", Tokenizer: "cl100k_base", SeparatorID: testSeparator}
	if _, err := builder.Build(phrases, cfg, dir, nil, nil); err != nil {
		t.Fatalf("builder.Build: %v", err)
	}
	m, err := Load(
		filepath.Join(dir, "phrases.daac"),
		filepath.Join(dir, "payloads.bin"),
		filepath.Join(dir, "manifest.json"),
		nil,
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// TestScenarios exercises S1 through S6.
func TestScenarios(t *testing.T) {
	t.Run("S1_leftmost_longest_prefers_longer_pattern", func(t *testing.T) {
		phrases := []builder.Phrase{
			{Tokens: []uint32{100, 101}, PhraseID: 100, Salience: 1.0, Count: 50},
			{Tokens: []uint32{200, 101}, PhraseID: 200, Salience: 1.0, Count: 50},
			{Tokens: []uint32{100, 101, 102}, PhraseID: 300, Salience: 3.0, Count: 200},
		}
		m := buildAndLoad(t, phrases)

		got := m.MatchTokens([]uint32{100, 101, 102}, match.LeftmostLongest, 10)
		if len(got) != 1 {
			t.Fatalf("got %d matches, want 1: %+v", len(got), got)
		}
		if got[0].Start != 0 || got[0].End != 3 || got[0].Payload.PhraseID != 300 {
			t.Errorf("S1: got %+v, want {start:0 end:3 phrase_id:300}", got[0])
		}
	})

	t.Run("S2_leftmost_longest_shorter_input", func(t *testing.T) {
		phrases := []builder.Phrase{
			{Tokens: []uint32{100, 101}, PhraseID: 100, Salience: 1.0, Count: 50},
			{Tokens: []uint32{200, 101}, PhraseID: 200, Salience: 1.0, Count: 50},
			{Tokens: []uint32{100, 101, 102}, PhraseID: 300, Salience: 3.0, Count: 200},
		}
		m := buildAndLoad(t, phrases)

		got := m.MatchTokens([]uint32{100, 101}, match.LeftmostLongest, 10)
		if len(got) != 1 {
			t.Fatalf("got %d matches, want 1: %+v", len(got), got)
		}
		if got[0].Start != 0 || got[0].End != 2 || got[0].Payload.PhraseID != 100 {
			t.Errorf("S2: got %+v, want {start:0 end:2 phrase_id:100}", got[0])
		}
	})

	t.Run("S3_leftmost_first_prefers_earlier_arrival", func(t *testing.T) {
		phrases := []builder.Phrase{
			{Tokens: []uint32{100, 101}, PhraseID: 100, Salience: 1.0, Count: 50},
			{Tokens: []uint32{200, 101}, PhraseID: 200, Salience: 1.0, Count: 50},
			{Tokens: []uint32{100, 101, 102}, PhraseID: 300, Salience: 3.0, Count: 200},
		}
		m := buildAndLoad(t, phrases)

		got := m.MatchTokens([]uint32{100, 101, 102}, match.LeftmostFirst, 10)
		if len(got) != 1 {
			t.Fatalf("got %d matches, want 1: %+v", len(got), got)
		}
		if got[0].Start != 0 || got[0].End != 2 || got[0].Payload.PhraseID != 100 {
			t.Errorf("S3: got %+v, want {start:0 end:2 phrase_id:100}", got[0])
		}
	})

	t.Run("S4_salience_max_prefers_higher_derived_score", func(t *testing.T) {
		phrases := []builder.Phrase{
			{Tokens: []uint32{1, 2}, PhraseID: 1, Salience: 1.0, Count: 100},
			{Tokens: []uint32{1, 2, 3}, PhraseID: 2, Salience: 2.0, Count: 200},
		}
		m := buildAndLoad(t, phrases)

		got := m.MatchTokens([]uint32{1, 2, 3}, match.SalienceMax, 10)
		if len(got) != 1 {
			t.Fatalf("got %d matches, want 1: %+v", len(got), got)
		}
		if got[0].Start != 0 || got[0].End != 3 {
			t.Errorf("S4: got %+v, want {start:0 end:3}", got[0])
		}
	})

	t.Run("S5_empty_input", func(t *testing.T) {
		phrases := []builder.Phrase{
			{Tokens: []uint32{1, 2}, PhraseID: 1, Salience: 1.0, Count: 1},
		}
		m := buildAndLoad(t, phrases)

		for _, p := range []match.Policy{match.LeftmostLongest, match.LeftmostFirst, match.SalienceMax} {
			got := m.MatchTokens(nil, p, 10)
			if len(got) != 0 {
				t.Errorf("S5 policy %v: got %d matches, want 0", p, len(got))
			}
		}
	})

	t.Run("S6_max_truncates_result_count", func(t *testing.T) {
		phrases := []builder.Phrase{
			{Tokens: []uint32{5, 6}, PhraseID: 1, Salience: 1.0, Count: 1},
		}
		m := buildAndLoad(t, phrases)

		one := m.MatchTokens([]uint32{5, 6, 5, 6}, match.LeftmostLongest, 1)
		if len(one) != 1 {
			t.Fatalf("max=1: got %d matches, want 1", len(one))
		}
		if one[0].Start != 0 || one[0].End != 2 {
			t.Errorf("max=1: got %+v, want {start:0 end:2}", one[0])
		}

		all := m.MatchTokens([]uint32{5, 6, 5, 6}, match.LeftmostLongest, 10)
		if len(all) != 2 {
			t.Fatalf("max=10: got %d matches, want 2", len(all))
		}
		if all[1].Start != 2 || all[1].End != 4 {
			t.Errorf("max=10 second match: got %+v, want {start:2 end:4}", all[1])
		}
	})
}

func TestMatchTokensZeroMax(t *testing.T) {
	m := buildAndLoad(t, []builder.Phrase{{Tokens: []uint32{1, 2}, PhraseID: 1, Count: 1}})
	got := m.MatchTokens([]uint32{1, 2}, match.LeftmostLongest, 0)
	if got != nil {
		t.Errorf("max=0: got %v, want nil", got)
	}
}

func TestStatsReflectsLoadedPatternCount(t *testing.T) {
	m := buildAndLoad(t, []builder.Phrase{
		{Tokens: []uint32{1, 2}, PhraseID: 1, Count: 1},
		{Tokens: []uint32{3, 4}, PhraseID: 2, Count: 1},
	})
	stats := m.Stats()
	if stats.NumPatterns != 2 {
		t.Errorf("Stats.NumPatterns: got %d, want 2", stats.NumPatterns)
	}
}

func TestStatsHitsTotalIncrements(t *testing.T) {
	m := buildAndLoad(t, []builder.Phrase{{Tokens: []uint32{1, 2}, PhraseID: 1, Count: 1}})
	m.MatchTokens([]uint32{1, 2}, match.LeftmostLongest, 10)
	stats := m.Stats()
	if stats.HitsTotal < 1 {
		t.Errorf("Stats.HitsTotal: got %d, want at least 1", stats.HitsTotal)
	}
}

func TestHealthcheck(t *testing.T) {
	m := buildAndLoad(t, []builder.Phrase{{Tokens: []uint32{1, 2}, PhraseID: 1, Count: 1}})
	if !m.Healthcheck() {
		t.Error("Healthcheck on a loaded matcher should report true")
	}
	var nilMatcher *Matcher
	if nilMatcher.Healthcheck() {
		t.Error("Healthcheck on a nil matcher should report false")
	}
}

func TestLoadMmapRoundTrip(t *testing.T) {
	dir := t.TempDir()
	phrases := []builder.Phrase{{Tokens: []uint32{1, 2}, PhraseID: 1, Salience: 1.0, Count: 1}}
	cfg := builder.Config{Version: "test", Tokenizer: "cl100k_base", SeparatorID: testSeparator}
	if _, err := builder.Build(phrases, cfg, dir, nil, nil); err != nil {
		t.Fatalf("builder.Build: %v", err)
	}

	m, err := LoadMmap(
		filepath.Join(dir, "phrases.daac"),
		filepath.Join(dir, "payloads.bin"),
		filepath.Join(dir, "manifest.json"),
		nil,
	)
	if err != nil {
		t.Fatalf("LoadMmap: %v", err)
	}
	defer m.Close()

	got := m.MatchTokens([]uint32{1, 2}, match.LeftmostLongest, 10)
	if len(got) != 1 || got[0].Payload.PhraseID != 1 {
		t.Errorf("LoadMmap match: got %+v, want one match with phrase_id 1", got)
	}
}
