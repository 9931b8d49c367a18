package extractor

import (
	"errors"
	"testing"

	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

func TestExtractNumericWithUnit(t *testing.T) {
	cases := []struct {
		name   string
		source string
		rule   flowmodel.ExtractionRule
		want   string
	}{
		{
			name:   "percent",
			source: "94%",
			rule: flowmodel.ExtractionRule{Pipeline: []flowmodel.ExtractionStep{
				{Method: flowmodel.ExtractNumeric, RemoveUnit: true},
			}},
			want: "94",
		},
		{
			name:   "negative celsius",
			source: "-12.5 °C",
			rule: flowmodel.ExtractionRule{Pipeline: []flowmodel.ExtractionStep{
				{Method: flowmodel.ExtractNumeric, RemoveUnit: true},
			}},
			want: "-12.5",
		},
		{
			name:   "fallback on no match",
			source: "N/A",
			rule: flowmodel.ExtractionRule{
				Pipeline:    []flowmodel.ExtractionStep{{Method: flowmodel.ExtractNumeric}},
				Fallback:    "0",
				HasFallback: true,
			},
			want: "0",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Extract(c.rule, c.source)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got != c.want {
				t.Errorf("Extract(%q) = %q, want %q", c.source, got, c.want)
			}
		})
	}
}

func TestExtractNoFallbackFails(t *testing.T) {
	rule := flowmodel.ExtractionRule{Pipeline: []flowmodel.ExtractionStep{{Method: flowmodel.ExtractNumeric}}}
	if _, err := Extract(rule, "N/A"); err == nil {
		t.Fatal("expected ExtractionFailed, got nil")
	}
}

func TestExtractRegexCompileErrorIgnoresFallback(t *testing.T) {
	rule := flowmodel.ExtractionRule{
		Pipeline:    []flowmodel.ExtractionStep{{Method: flowmodel.ExtractRegex, Regex: "(unterminated"}},
		Fallback:    "0",
		HasFallback: true,
	}
	_, err := Extract(rule, "94%")
	if err == nil {
		t.Fatal("expected ExtractionFailed from a regex compilation error, got nil")
	}
	if !errors.Is(err, ferrors.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtractBetween(t *testing.T) {
	rule := flowmodel.ExtractionRule{Pipeline: []flowmodel.ExtractionStep{
		{Method: flowmodel.ExtractBetween, Start: "[", End: "]"},
	}}
	got, err := Extract(rule, "value[42]tail")
	if err != nil || got != "42" {
		t.Fatalf("Extract = %q, %v; want 42, nil", got, err)
	}
}

func TestExtractPipelineAssociativity(t *testing.T) {
	// [exact, exact, extract X] == [extract X] for identity-preserving steps.
	identityThenExtract := flowmodel.ExtractionRule{Pipeline: []flowmodel.ExtractionStep{
		{Method: flowmodel.ExtractExact},
		{Method: flowmodel.ExtractExact},
		{Method: flowmodel.ExtractAfter, Substring: ": "},
	}}
	justExtract := flowmodel.ExtractionRule{Pipeline: []flowmodel.ExtractionStep{
		{Method: flowmodel.ExtractAfter, Substring: ": "},
	}}
	source := "label: value"
	a, err := Extract(identityThenExtract, source)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Extract(justExtract, source)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("pipeline not associative: %q != %q", a, b)
	}
}
