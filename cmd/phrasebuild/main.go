// Command phrasebuild assembles a phrase-matching artifact set
// (phrases.daac, payloads.bin, manifest.json) from a JSONL phrase stream
// and a build config.
//
// Usage:
//
//	phrasebuild -phrases phrases.jsonl -config build-config.json -out ./artifacts
//
// Each line of the phrases file is a JSON object:
//
//	{"tokens":[100,101],"phrase_id":100,"salience":2.5,"count":150}
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/praetorian-labs/phrasematch/internal/builder"
	"github.com/praetorian-labs/phrasematch/internal/logger"
)

type buildConfigFile struct {
	Version           string   `json:"version"`
	Tokenizer         string   `json:"tokenizer"`
	SeparatorID       uint32   `json:"separator_id"`
	MinCount          *uint32  `json:"min_count,omitempty"`
	SalienceThreshold *float32 `json:"salience_threshold,omitempty"`
}

type phraseLine struct {
	Tokens   []uint32 `json:"tokens"`
	PhraseID uint32   `json:"phrase_id"`
	Salience float32  `json:"salience"`
	Count    uint32   `json:"count"`
}

func main() {
	phrasesPath := flag.String("phrases", "", "path to a JSONL phrase stream")
	configPath := flag.String("config", "", "path to a build config JSON file")
	outDir := flag.String("out", "./artifacts", "output artifact directory")
	fixture := flag.Bool("fixture", false, "write the built-in test fixture instead of reading -phrases/-config")
	ledgerPath := flag.String("dedup-ledger", "", "optional bbolt-backed duplicate-id ledger path, for phrase streams too large to dedup in memory")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := logger.New("BUILD", *logLevel)

	if *fixture {
		result, err := builder.GenerateFixture(*outDir)
		if err != nil {
			log.Fatalf("build", "fixture generation failed: %v", err)
		}
		log.Infof("build", "wrote fixture: %d patterns", result.PatternsBuilt)
		return
	}

	if *phrasesPath == "" || *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: phrasebuild -phrases phrases.jsonl -config build-config.json -out ./artifacts")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfgFile, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("build", "loading config: %v", err)
	}

	phrases, err := loadPhrases(*phrasesPath, log)
	if err != nil {
		log.Fatalf("build", "loading phrases: %v", err)
	}

	var ledger builder.DedupLedger
	if *ledgerPath != "" {
		ledger, err = builder.NewDiskLedger(*ledgerPath)
		if err != nil {
			log.Fatalf("build", "opening dedup ledger: %v", err)
		}
	}

	cfg := builder.Config{
		Version:           cfgFile.Version,
		Tokenizer:         cfgFile.Tokenizer,
		SeparatorID:       cfgFile.SeparatorID,
		MinCount:          cfgFile.MinCount,
		SalienceThreshold: cfgFile.SalienceThreshold,
	}

	result, err := builder.Build(phrases, cfg, *outDir, ledger, log)
	if err != nil {
		log.Fatalf("build", "build failed: %v", err)
	}

	log.Counts("done", []logger.Counter{
		{Name: "inputs", Value: result.InputsSeen},
		{Name: "built", Value: result.PatternsBuilt},
		{Name: "filtered_dup", Value: result.FilteredDuplicateID},
		{Name: "filtered_min_count", Value: result.FilteredMinCount},
		{Name: "filtered_salience", Value: result.FilteredSalience},
	})
}

func loadConfig(path string) (buildConfigFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied CLI flag
	if err != nil {
		return buildConfigFile{}, err
	}
	var cfg buildConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return buildConfigFile{}, err
	}
	return cfg, nil
}

func loadPhrases(path string, log *logger.Logger) ([]builder.Phrase, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied CLI flag
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var out []builder.Phrase
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var pl phraseLine
		if err := json.Unmarshal([]byte(line), &pl); err != nil {
			log.Warnf("load", "line %d: skipping malformed JSON: %v", lineNum, err)
			continue
		}
		out = append(out, builder.Phrase{
			Tokens:   pl.Tokens,
			PhraseID: pl.PhraseID,
			Salience: pl.Salience,
			Count:    pl.Count,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
