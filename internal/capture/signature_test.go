package capture

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func flatImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestComputeSignatureShape(t *testing.T) {
	sig := ComputeSignature(flatImage(480, 280, color.White))
	if sig.Cols != SignatureCols || sig.Rows != SignatureRows {
		t.Fatalf("shape = %dx%d, want %dx%d", sig.Cols, sig.Rows, SignatureCols, SignatureRows)
	}
	if len(sig.Cells) != SignatureCols*SignatureRows {
		t.Fatalf("cells = %d", len(sig.Cells))
	}
	for i, c := range sig.Cells {
		if c < 250 || c > 255 {
			t.Fatalf("cell %d = %v, want ~255 for white frame", i, c)
		}
	}
}

func TestCompareSignaturesSelfIsZero(t *testing.T) {
	sig := ComputeSignature(flatImage(240, 140, color.RGBA{80, 120, 200, 255}))
	diff := CompareSignatures(sig, sig)
	if diff.Distance != 0 || diff.ChangedRatio != 0 || diff.ChangedCells != 0 {
		t.Fatalf("self diff = %+v, want zeros", diff)
	}
	if diff.TotalCells != SignatureCols*SignatureRows {
		t.Fatalf("total cells = %d", diff.TotalCells)
	}
}

func TestCompareSignaturesBounds(t *testing.T) {
	black := ComputeSignature(flatImage(240, 140, color.Black))
	white := ComputeSignature(flatImage(240, 140, color.White))
	diff := CompareSignatures(black, white)
	if diff.Distance < 0 || diff.Distance > 1 {
		t.Fatalf("distance out of range: %v", diff.Distance)
	}
	if diff.ChangedRatio < 0 || diff.ChangedRatio > 1 {
		t.Fatalf("ratio out of range: %v", diff.ChangedRatio)
	}
	if diff.Distance < 0.9 {
		t.Fatalf("black->white distance = %v, want near 1", diff.Distance)
	}
	if diff.ChangedRatio != 1 {
		t.Fatalf("black->white ratio = %v, want 1", diff.ChangedRatio)
	}
}

func TestCompareSignaturesMissingIsTotalChange(t *testing.T) {
	sig := ComputeSignature(flatImage(100, 100, color.White))
	for _, tc := range []struct {
		name       string
		prev, curr *Signature
	}{
		{"nil_prev", nil, sig},
		{"nil_curr", sig, nil},
		{"shape_mismatch", &Signature{Cols: 2, Rows: 2, Cells: make([]float64, 4)}, sig},
	} {
		t.Run(tc.name, func(t *testing.T) {
			diff := CompareSignatures(tc.prev, tc.curr)
			if diff.Distance != 1 || diff.ChangedRatio != 1 {
				t.Fatalf("diff = %+v, want total change", diff)
			}
		})
	}
}

func TestComputeSignatureDeterministic(t *testing.T) {
	img := flatImage(317, 211, color.RGBA{90, 40, 160, 255})
	a := ComputeSignature(img)
	b := ComputeSignature(img)
	if d := cmp.Diff(a, b); d != "" {
		t.Fatalf("signatures differ for identical input (-a +b):\n%s", d)
	}
}

// Classification thresholds live in the live-watch engine, but the diff
// numbers it consumes come from here: distance 0.2 against a 0.015
// minimum classifies as changed regardless of the 0.1 ratio.
func TestDiffScenarioNumbers(t *testing.T) {
	diff := Diff{Distance: 0.2, ChangedRatio: 0.1}
	changed := diff.Distance >= 0.015 || diff.ChangedRatio >= 0.06
	if !changed {
		t.Fatal("scenario diff should classify as changed")
	}
}
