package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// MinDatasetSize is the provider-side floor for fine-tuning jobs.
	MinDatasetSize = 10
	// CostPerMillionTokens is the gpt-4o fine-tuning rate in dollars.
	CostPerMillionTokens = 25.0
	// DefaultEpochs is the assumed number of training passes for cost
	// estimation.
	DefaultEpochs = 3

	tokenizerModel = "gpt-4o"
)

// ExportJSONL renders the examples as JSONL: one compact JSON object per
// line, newline-joined, with a trailing newline. The trailing newline is
// unconditional, so zero examples render as a single newline.
func ExportJSONL(examples []Example) (string, error) {
	lines := make([]string, len(examples))
	for i, ex := range examples {
		line, err := json.Marshal(ex)
		if err != nil {
			return "", fmt.Errorf("marshal example: %w", err)
		}
		lines[i] = string(line)
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// SplitTrainValidation shuffles the examples and cuts at floor(n*ratio).
// Determinism is up to the caller's seeding of rng; pass nil for the
// global source. Only len(train)+len(val) == len(examples) is guaranteed.
func SplitTrainValidation(examples []Example, ratio float64, rng *rand.Rand) (train, val []Example) {
	shuffled := make([]Example, len(examples))
	copy(shuffled, examples)

	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	} else {
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	}

	cut := int(float64(len(shuffled)) * ratio)
	return shuffled[:cut], shuffled[cut:]
}

// CountTokens sums per-example token counts of the JSON serialization
// using the target model's tokenizer. When the tokenizer is unavailable
// it approximates at four characters per token.
func CountTokens(examples []Example) int {
	enc, err := tiktoken.EncodingForModel(tokenizerModel)
	if err != nil {
		totalChars := 0
		for _, ex := range examples {
			if data, err := json.Marshal(ex); err == nil {
				totalChars += len(data)
			}
		}
		return totalChars / 4
	}

	total := 0
	for _, ex := range examples {
		data, err := json.Marshal(ex)
		if err != nil {
			continue
		}
		total += len(enc.Encode(string(data), nil, nil))
	}
	return total
}

// EstimateTrainingCost estimates the fine-tuning cost in dollars for the
// given token count, rounded to cents.
func EstimateTrainingCost(tokens, epochs int) float64 {
	trainingTokens := float64(tokens * epochs)
	cost := trainingTokens / 1_000_000 * CostPerMillionTokens
	return math.Round(cost*100) / 100
}

// ValidateDataset returns dataset-level warnings. Below the minimum size
// the fine-tuning job would be rejected outright.
func ValidateDataset(examples []Example) []string {
	var warnings []string
	if len(examples) < MinDatasetSize {
		warnings = append(warnings, fmt.Sprintf(
			"OpenAI requires at least %d training examples. You have %d. The fine-tuning job will be rejected.",
			MinDatasetSize, len(examples),
		))
	}
	return warnings
}

// BuildSplitArchive packages a train/validation split as a zip with one
// dated JSONL per set.
func BuildSplitArchive(train, val []Example, date time.Time) ([]byte, error) {
	trainJSONL, err := ExportJSONL(train)
	if err != nil {
		return nil, err
	}
	valJSONL, err := ExportJSONL(val)
	if err != nil {
		return nil, err
	}

	stamp := date.Format("2006-01-02")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, entry := range []struct {
		name string
		body string
	}{
		{fmt.Sprintf("training_data_%s.jsonl", stamp), trainJSONL},
		{fmt.Sprintf("validation_data_%s.jsonl", stamp), valJSONL},
	} {
		w, err := zw.Create(entry.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", entry.name, err)
		}
		if _, err := w.Write([]byte(entry.body)); err != nil {
			return nil, fmt.Errorf("write %s: %w", entry.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
