package discoverhotvideos

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	textHeader = "Hot Videos on diVine:"
	textEmpty  = "No hot videos found."
)

// EffectiveLimit is min(requested, ceiling), or the default when the
// request gave no usable value.
func EffectiveLimit(p Params, defaultMax, ceiling int) int {
	limit := defaultMax
	if p.MaxResultsSet && p.MaxResults > 0 {
		limit = p.MaxResults
	}
	if ceiling > 0 && limit > ceiling {
		limit = ceiling
	}
	return limit
}

// Dedupe drops repeated triples, keeping the first occurrence.
func Dedupe(items []ItemReference) []ItemReference {
	seen := make(map[referenceKey]struct{}, len(items))
	out := make([]ItemReference, 0, len(items))
	for _, it := range items {
		key := it.key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// BuildJobResult dedupes then truncates to limit.
func BuildJobResult(jobID string, items []ItemReference, limit int) JobResult {
	unique := Dedupe(items)
	if limit >= 0 && len(unique) > limit {
		unique = unique[:limit]
	}
	return JobResult{JobID: jobID, Items: unique}
}

// FormatJSON renders [["a","<kind>:<pubkey>:<d>","<relay hint>"], ...].
// An empty result is "[]".
func FormatJSON(res JobResult) (string, error) {
	records := make([][]string, 0, len(res.Items))
	for _, it := range res.Items {
		records = append(records, []string{"a", it.Address(), it.RelayHint})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// FormatText renders the numbered listing used for text/plain output.
func FormatText(res JobResult) string {
	if len(res.Items) == 0 {
		return textEmpty
	}
	var b strings.Builder
	b.WriteString(textHeader)
	b.WriteString("\n")
	for i, it := range res.Items {
		fmt.Fprintf(&b, "\n%d. %s", i+1, it.Address())
	}
	return b.String()
}

func FormatPayload(res JobResult, format OutputFormat) (string, error) {
	if format == OutputText {
		return FormatText(res), nil
	}
	return FormatJSON(res)
}

// ParsePayload reads a JSON payload back into references.
func ParsePayload(payload string) ([]ItemReference, error) {
	var records [][]string
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	items := make([]ItemReference, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 || rec[0] != "a" {
			return nil, fmt.Errorf("record %d: want [\"a\", address, hint]", i)
		}
		ref, err := ParseAddress(rec[1])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if len(rec) > 2 {
			ref.RelayHint = rec[2]
		}
		items = append(items, ref)
	}
	return items, nil
}
