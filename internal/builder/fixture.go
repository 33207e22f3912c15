package builder

// DefaultFixtureSeparator is the separator id the S1-S3 test fixture uses.
const DefaultFixtureSeparator = uint32(4294967294)

// DefaultFixturePhrases returns the three-pattern fixture used throughout
// the test suite: two two-token patterns sharing a token ("machine
// learning" / "deep learning") and one three-token extension of the first
// ("machine learning algorithms"), so overlap-resolution policies have a
// real case to disambiguate.
func DefaultFixturePhrases() []Phrase {
	return []Phrase{
		{Tokens: []uint32{100, 101}, PhraseID: 100, Salience: 2.5, Count: 150},
		{Tokens: []uint32{200, 101}, PhraseID: 200, Salience: 2.0, Count: 100},
		{Tokens: []uint32{100, 101, 102}, PhraseID: 300, Salience: 3.0, Count: 200},
	}
}

// GenerateFixture builds the default fixture phrase set into outDir, for
// tests and local development that need a ready-made artifact set without
// running the full build pipeline against real data.
func GenerateFixture(outDir string) (Result, error) {
	minCount := uint32(10)
	threshold := float32(1.0)
	cfg := Config{
		Version:           "test-v1",
		Tokenizer:         "test-tokenizer",
		SeparatorID:       DefaultFixtureSeparator,
		MinCount:          &minCount,
		SalienceThreshold: &threshold,
	}
	return Build(DefaultFixturePhrases(), cfg, outDir, nil, nil)
}
