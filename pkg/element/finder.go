// Package element implements the Smart Element Finder from spec §4.5: a
// cascade of matching strategies over a parsed UI element list, each with a
// fixed confidence score, broken by proximity to a stored bounds hint.
package element

import (
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// Method names the strategy that resolved a Result.
type Method string

const (
	MethodHierarchyPath Method = "hierarchy_path"
	MethodResourceID    Method = "resource_id"
	MethodTextClass     Method = "text_class"
	MethodTextOnly      Method = "text_only"
	MethodClassBounds   Method = "class_bounds"
	MethodStoredBounds  Method = "stored_bounds"
)

// Result is the outcome of Find.
type Result struct {
	Found      bool
	Element    *flowmodel.UIElement
	Bounds     *flowmodel.Bounds
	Confidence float64
	Method     Method
}

// boundsApproxPx is the tolerance for the class+bounds strategy.
const boundsApproxPx = 50

// Find locates ref within elements using the cascade from spec §4.5,
// stopping at the first strategy that has the information to attempt a
// match and yields at least one candidate.
func Find(ref *flowmodel.ElementRef, elements []flowmodel.UIElement) Result {
	if ref == nil {
		return Result{}
	}

	if ref.HierarchyPath != "" {
		for i := range elements {
			if elements[i].Path == ref.HierarchyPath {
				return resultFor(&elements[i], 0.95, MethodHierarchyPath)
			}
		}
	}

	if ref.ResourceID != "" {
		if r, ok := pickByBoundsTiebreak(elements, ref.StoredBounds, 1.00, MethodResourceID,
			func(e *flowmodel.UIElement) bool { return e.ResourceID == ref.ResourceID }); ok {
			return r
		}
	}

	if ref.Text != "" && ref.Class != "" {
		if r, ok := pickByBoundsTiebreak(elements, ref.StoredBounds, 0.90, MethodTextClass,
			func(e *flowmodel.UIElement) bool { return e.Text == ref.Text && e.Class == ref.Class }); ok {
			return r
		}
	}

	if ref.Text != "" {
		if r, ok := pickByBoundsTiebreak(elements, ref.StoredBounds, 0.70, MethodTextOnly,
			func(e *flowmodel.UIElement) bool { return e.Text == ref.Text }); ok {
			return r
		}
	}

	if ref.Class != "" && ref.StoredBounds != nil {
		var best *flowmodel.UIElement
		bestDist := -1.0
		for i := range elements {
			if elements[i].Class != ref.Class {
				continue
			}
			d := elements[i].Bounds.CenterDistance(*ref.StoredBounds)
			if d > boundsApproxPx {
				continue
			}
			if bestDist < 0 || d < bestDist {
				bestDist = d
				best = &elements[i]
			}
		}
		if best != nil {
			return resultFor(best, 0.50, MethodClassBounds)
		}
	}

	if ref.StoredBounds != nil {
		return Result{
			Found:      true,
			Bounds:     ref.StoredBounds,
			Confidence: 0.30,
			Method:     MethodStoredBounds,
		}
	}

	return Result{Found: false}
}

func pickByBoundsTiebreak(
	elements []flowmodel.UIElement,
	stored *flowmodel.Bounds,
	confidence float64,
	method Method,
	match func(*flowmodel.UIElement) bool,
) (Result, bool) {
	var candidates []*flowmodel.UIElement
	for i := range elements {
		if match(&elements[i]) {
			candidates = append(candidates, &elements[i])
		}
	}
	if len(candidates) == 0 {
		return Result{}, false
	}
	if len(candidates) == 1 || stored == nil {
		return resultFor(candidates[0], confidence, method), true
	}
	best := candidates[0]
	bestDist := best.Bounds.CenterDistance(*stored)
	for _, c := range candidates[1:] {
		d := c.Bounds.CenterDistance(*stored)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return resultFor(best, confidence, method), true
}

func resultFor(e *flowmodel.UIElement, confidence float64, method Method) Result {
	b := e.Bounds
	return Result{
		Found:      true,
		Element:    e,
		Bounds:     &b,
		Confidence: confidence,
		Method:     method,
	}
}
