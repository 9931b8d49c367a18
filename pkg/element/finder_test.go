package element

import (
	"testing"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

func TestFindResourceIDExact(t *testing.T) {
	elements := []flowmodel.UIElement{
		{ResourceID: "com.app:id/title", Text: "Home", Bounds: flowmodel.Bounds{X: 0, Y: 0, W: 10, H: 10}},
	}
	ref := &flowmodel.ElementRef{ResourceID: "com.app:id/title"}
	r := Find(ref, elements)
	if !r.Found || r.Confidence != 1.00 || r.Method != MethodResourceID {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestFindAmbiguousResourceIDBrokenByBounds(t *testing.T) {
	elements := []flowmodel.UIElement{
		{ResourceID: "id/row", Bounds: flowmodel.Bounds{X: 0, Y: 0, W: 10, H: 10}},
		{ResourceID: "id/row", Bounds: flowmodel.Bounds{X: 100, Y: 100, W: 10, H: 10}},
	}
	stored := flowmodel.Bounds{X: 98, Y: 98, W: 10, H: 10}
	ref := &flowmodel.ElementRef{ResourceID: "id/row", StoredBounds: &stored}
	r := Find(ref, elements)
	if !r.Found || r.Element.Bounds.X != 100 {
		t.Fatalf("expected the closer candidate at x=100, got %+v", r)
	}
}

func TestFindCascadesToTextOnly(t *testing.T) {
	elements := []flowmodel.UIElement{
		{Text: "Submit", Class: "android.widget.Button", Bounds: flowmodel.Bounds{X: 1, Y: 1, W: 1, H: 1}},
	}
	ref := &flowmodel.ElementRef{Text: "Submit", Class: "android.widget.TextView"}
	r := Find(ref, elements)
	if !r.Found || r.Method != MethodTextOnly || r.Confidence != 0.70 {
		t.Fatalf("expected text-only cascade, got %+v", r)
	}
}

func TestFindFallsBackToStoredBounds(t *testing.T) {
	stored := flowmodel.Bounds{X: 5, Y: 5, W: 5, H: 5}
	ref := &flowmodel.ElementRef{StoredBounds: &stored}
	r := Find(ref, nil)
	if !r.Found || r.Confidence != 0.30 || r.Method != MethodStoredBounds {
		t.Fatalf("expected stored-bounds fallback, got %+v", r)
	}
}

func TestFindNothing(t *testing.T) {
	r := Find(&flowmodel.ElementRef{Text: "missing"}, nil)
	if r.Found {
		t.Fatalf("expected not found, got %+v", r)
	}
}
