package capture

import "image"

// Signature grid dimensions. 24x14 cells is coarse enough to be cheap and
// fine enough to localize change to a screen region.
const (
	SignatureCols = 24
	SignatureRows = 14
)

// cellChangeThreshold is the per-cell luminance delta (out of 255) above
// which a cell counts as changed.
const cellChangeThreshold = 22.0

// Signature is a downsampled luminance grid of one capture.
type Signature struct {
	Cols  int
	Rows  int
	Cells []float64 // mean luminance per cell, row-major, 0..255
}

// ComputeSignature downsamples an image to the fixed luminance grid using
// BT.601-like weights: (30R + 59G + 11B) / 100.
func ComputeSignature(img image.Image) *Signature {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	sig := &Signature{
		Cols:  SignatureCols,
		Rows:  SignatureRows,
		Cells: make([]float64, SignatureCols*SignatureRows),
	}
	if w == 0 || h == 0 {
		return sig
	}

	for row := 0; row < SignatureRows; row++ {
		y0 := bounds.Min.Y + row*h/SignatureRows
		y1 := bounds.Min.Y + (row+1)*h/SignatureRows
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for col := 0; col < SignatureCols; col++ {
			x0 := bounds.Min.X + col*w/SignatureCols
			x1 := bounds.Min.X + (col+1)*w/SignatureCols
			if x1 <= x0 {
				x1 = x0 + 1
			}

			var sum float64
			var n int
			// Sample a sparse lattice inside the cell rather than every
			// pixel; a 4K frame would otherwise dominate the tick budget.
			stepX := (x1 - x0 + 7) / 8
			stepY := (y1 - y0 + 7) / 8
			if stepX < 1 {
				stepX = 1
			}
			if stepY < 1 {
				stepY = 1
			}
			for y := y0; y < y1; y += stepY {
				for x := x0; x < x1; x += stepX {
					r, g, b, _ := img.At(x, y).RGBA()
					lum := (30*float64(r>>8) + 59*float64(g>>8) + 11*float64(b>>8)) / 100
					sum += lum
					n++
				}
			}
			if n > 0 {
				sig.Cells[row*SignatureCols+col] = sum / float64(n)
			}
		}
	}
	return sig
}

// Diff quantifies change between two signatures.
type Diff struct {
	Distance     float64 // mean absolute luminance delta, normalized to [0,1]
	ChangedRatio float64 // fraction of cells whose delta >= threshold
	ChangedCells int
	TotalCells   int
}

// CompareSignatures computes the diff between two signatures. Missing or
// shape-mismatched signatures are reported as total change: the engine
// must bias toward re-analysis rather than silently skipping.
func CompareSignatures(prev, curr *Signature) Diff {
	if prev == nil || curr == nil ||
		prev.Cols != curr.Cols || prev.Rows != curr.Rows ||
		len(prev.Cells) != len(curr.Cells) || len(curr.Cells) == 0 {
		total := 0
		if curr != nil {
			total = len(curr.Cells)
		}
		return Diff{Distance: 1, ChangedRatio: 1, ChangedCells: total, TotalCells: total}
	}

	var sum float64
	changed := 0
	for i := range curr.Cells {
		delta := curr.Cells[i] - prev.Cells[i]
		if delta < 0 {
			delta = -delta
		}
		sum += delta
		if delta >= cellChangeThreshold {
			changed++
		}
	}
	total := len(curr.Cells)
	return Diff{
		Distance:     sum / float64(total) / 255.0,
		ChangedRatio: float64(changed) / float64(total),
		ChangedCells: changed,
		TotalCells:   total,
	}
}
