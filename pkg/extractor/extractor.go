// Package extractor implements the stateless text-extraction pipeline from
// spec §4.6: rules are either a single step or an ordered pipeline over
// source text, with post-processing flags applied to every step's result.
package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

var numericRe = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
var unitSuffixRe = regexp.MustCompile(`^([-+]?\d+(?:\.\d+)?)\s*[^\d.\s-]*$`)

// Extract applies rule to source, returning the extracted value. The first
// step that collapses to null ends the pipeline, and the rule's fallback is
// returned (its absence surfaces as ExtractionFailed).
func Extract(rule flowmodel.ExtractionRule, source string) (string, error) {
	value := source
	ok := true
	for _, step := range rule.Pipeline {
		if !ok {
			break
		}
		var err error
		value, ok, err = applyStep(step, value)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ferrors.ErrExtractionFailed, err)
		}
		if ok {
			value = postProcess(step, value)
		}
	}
	if ok {
		return value, nil
	}
	if rule.HasFallback {
		return rule.Fallback, nil
	}
	return "", fmt.Errorf("%w: a pipeline step returned null and no fallback is configured", ferrors.ErrExtractionFailed)
}

// applyStep runs a single extraction step, returning ok=false when the step
// produces no match (a "null" result in pipeline terms) or a non-nil error
// when the step itself is malformed — a regex compilation error, which is
// always reported as ExtractionFailed rather than being absorbed into a
// configured fallback.
func applyStep(step flowmodel.ExtractionStep, source string) (string, bool, error) {
	switch step.Method {
	case flowmodel.ExtractExact:
		return source, true, nil

	case flowmodel.ExtractRegex:
		re, err := regexp.Compile(step.Regex)
		if err != nil {
			return "", false, fmt.Errorf("compiling regex %q: %w", step.Regex, err)
		}
		m := re.FindStringSubmatch(source)
		if m == nil {
			return "", false, nil
		}
		if len(m) > 1 {
			return m[1], true, nil
		}
		return m[0], true, nil

	case flowmodel.ExtractNumeric:
		m := numericRe.FindString(source)
		if m == "" {
			return "", false, nil
		}
		return m, true, nil

	case flowmodel.ExtractBefore:
		idx := strings.Index(source, step.Substring)
		if idx < 0 {
			return "", false, nil
		}
		return source[:idx], true, nil

	case flowmodel.ExtractAfter:
		idx := strings.Index(source, step.Substring)
		if idx < 0 {
			return "", false, nil
		}
		return source[idx+len(step.Substring):], true, nil

	case flowmodel.ExtractBetween:
		startIdx := strings.Index(source, step.Start)
		if startIdx < 0 {
			return "", false, nil
		}
		rest := source[startIdx+len(step.Start):]
		endIdx := strings.Index(rest, step.End)
		if endIdx < 0 {
			return "", false, nil
		}
		return rest[:endIdx], true, nil

	default:
		return "", false, nil
	}
}

// postProcess applies a step's extract_numeric/remove_unit flags.
func postProcess(step flowmodel.ExtractionStep, value string) string {
	value = strings.TrimSpace(value)
	if step.RemoveUnit {
		if m := unitSuffixRe.FindStringSubmatch(value); m != nil {
			value = m[1]
		}
	}
	if step.ExtractNumericFlag {
		if m := numericRe.FindString(value); m != "" {
			value = m
		}
	}
	return value
}

// ParseFloat is a convenience for callers that need the numeric value of an
// extracted scalar sensor reading.
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
