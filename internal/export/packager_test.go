package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func sampleExamples(n int) []Example {
	out := make([]Example, n)
	for i := range out {
		out[i] = Example{
			Messages: []Message{
				{Role: "user", Content: "Hi."},
				{Role: "assistant", Content: "Hello."},
			},
		}
	}
	return out
}

func TestExportJSONL_RoundTrip(t *testing.T) {
	examples := sampleExamples(3)
	examples[1].Messages[0].Content = "Order me a margherita."

	jsonl, err := ExportJSONL(examples)
	if err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	if !strings.HasSuffix(jsonl, "\n") {
		t.Error("output missing trailing newline")
	}

	lines := strings.Split(strings.TrimSuffix(jsonl, "\n"), "\n")
	if len(lines) != len(examples) {
		t.Fatalf("got %d lines, want %d", len(lines), len(examples))
	}
	for i, line := range lines {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if _, ok := obj["messages"]; !ok {
			t.Errorf("line %d missing messages key", i)
		}
		if strings.Contains(line, "\n") {
			t.Errorf("line %d contains embedded newline", i)
		}
	}
}

func TestExportJSONL_Empty(t *testing.T) {
	jsonl, err := ExportJSONL(nil)
	if err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	if jsonl != "\n" {
		t.Errorf("got %q, want a bare newline", jsonl)
	}
}

func TestSplitTrainValidation(t *testing.T) {
	examples := sampleExamples(10)
	for i := range examples {
		examples[i].Messages[0].Content = strings.Repeat("x", i+1)
	}

	rng := rand.New(rand.NewSource(42))
	train, val := SplitTrainValidation(examples, 0.8, rng)

	if len(train) != 8 || len(val) != 2 {
		t.Errorf("split = %d/%d, want 8/2", len(train), len(val))
	}

	// Every input example appears exactly once across both sets.
	counts := make(map[string]int)
	for _, ex := range append(append([]Example{}, train...), val...) {
		counts[ex.Messages[0].Content]++
	}
	if len(counts) != 10 {
		t.Fatalf("got %d distinct examples, want 10", len(counts))
	}
	for content, n := range counts {
		if n != 1 {
			t.Errorf("example %q appears %d times", content, n)
		}
	}
}

func TestSplitTrainValidation_Edges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	train, val := SplitTrainValidation(sampleExamples(5), 1.0, rng)
	if len(train) != 5 || len(val) != 0 {
		t.Errorf("ratio 1.0: split = %d/%d, want 5/0", len(train), len(val))
	}

	train, val = SplitTrainValidation(nil, 0.8, rng)
	if len(train) != 0 || len(val) != 0 {
		t.Errorf("empty input: split = %d/%d, want 0/0", len(train), len(val))
	}

	train, val = SplitTrainValidation(sampleExamples(3), 0.5, rng)
	if len(train)+len(val) != 3 {
		t.Errorf("ratio 0.5 over 3: %d+%d examples, want 3 total", len(train), len(val))
	}
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens(nil); got != 0 {
		t.Errorf("CountTokens(nil) = %d, want 0", got)
	}

	one := CountTokens(sampleExamples(1))
	if one <= 0 {
		t.Fatalf("CountTokens of one example = %d, want > 0", one)
	}

	// The tokenizer path sums per-example encodes; the character
	// fallback divides the combined length once, keeping up to n-1
	// characters the per-example division would have discarded. Either
	// way, three identical examples land within that slack of three
	// times one.
	three := CountTokens(sampleExamples(3))
	if three < one*3 || three > one*3+2 {
		t.Errorf("three identical examples = %d tokens, want %d..%d", three, one*3, one*3+2)
	}
}

func TestEstimateTrainingCost(t *testing.T) {
	tests := []struct {
		tokens, epochs int
		want           float64
	}{
		{0, 3, 0},
		{1_000_000, 1, 25.0},
		{1_000_000, 3, 75.0},
		{100_000, 3, 7.5},
		{12_345, 3, 0.93},
	}
	for _, tt := range tests {
		if got := EstimateTrainingCost(tt.tokens, tt.epochs); got != tt.want {
			t.Errorf("EstimateTrainingCost(%d, %d) = %v, want %v", tt.tokens, tt.epochs, got, tt.want)
		}
	}
}

func TestValidateDataset_MinimumSize(t *testing.T) {
	warnings := ValidateDataset(sampleExamples(5))
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if !strings.Contains(warnings[0], "at least 10") || !strings.Contains(warnings[0], "5") {
		t.Errorf("warning %q does not mention the minimum and the actual count", warnings[0])
	}

	if warnings := ValidateDataset(sampleExamples(10)); len(warnings) != 0 {
		t.Errorf("10 examples: got warnings %v, want none", warnings)
	}
}

func TestBuildSplitArchive(t *testing.T) {
	date := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	data, err := BuildSplitArchive(sampleExamples(8), sampleExamples(2), date)
	if err != nil {
		t.Fatalf("BuildSplitArchive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	want := map[string]int{
		"training_data_2025-06-15.jsonl":   8,
		"validation_data_2025-06-15.jsonl": 2,
	}
	if len(zr.File) != len(want) {
		t.Fatalf("archive has %d entries, want %d", len(zr.File), len(want))
	}
	for _, f := range zr.File {
		wantLines, ok := want[f.Name]
		if !ok {
			t.Errorf("unexpected archive entry %s", f.Name)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		rc.Close()
		got := strings.Count(buf.String(), "\n")
		if got != wantLines {
			t.Errorf("%s has %d lines, want %d", f.Name, got, wantLines)
		}
	}
}
