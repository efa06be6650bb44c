package recognition

import (
	"sort"

	"github.com/egrangel/facerecon-sub001/internal/detector"
)

// Geometric gates applied before any face reaches the ANN index. RTSP feeds
// produce a steady trickle of spurious boxes (texture noise, on-screen
// timestamps, distant crowds); these filters keep them out of the pipeline.
const (
	minFaceSide       = 30
	minFaceArea       = 1000
	minDetectionScore = 0.18
	minAspectRatio    = 0.7
	maxAspectRatio    = 1.5

	nmsIoUThreshold = 0.3

	// Camera vendors burn timestamps and logos into the corners. Boxes
	// centered inside these regions are overlay artifacts, not faces.
	overlayCornerWidth  = 200
	overlayCornerHeight = 100

	// Small boxes hugging the frame border are ticker text and watermark
	// fragments rather than faces.
	smallFaceSide = 50
	edgeMargin    = 20

	defaultCanvasWidth  = 1920
	defaultCanvasHeight = 1080

	maxFacesPerFrame = 10
)

// validFace reports whether a detected box passes the size, confidence,
// aspect ratio and area gates.
func validFace(f detector.Face) bool {
	w, h := f.Box.Width, f.Box.Height
	if w < minFaceSide || h < minFaceSide {
		return false
	}
	// Only scores strictly above the floor pass.
	if f.Confidence <= minDetectionScore {
		return false
	}
	aspect := float64(w) / float64(h)
	if aspect < minAspectRatio || aspect > maxAspectRatio {
		return false
	}
	if w*h < minFaceArea {
		return false
	}
	return true
}

// iou computes intersection-over-union of two boxes.
func iou(a, b detector.Box) float64 {
	ax2, ay2 := a.X+a.Width, a.Y+a.Height
	bx2, by2 := b.X+b.Width, b.Y+b.Height

	ix1 := max(a.X, b.X)
	iy1 := max(a.Y, b.Y)
	ix2 := min(ax2, bx2)
	iy2 := min(ay2, by2)

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := float64((ix2 - ix1) * (iy2 - iy1))
	union := float64(a.Width*a.Height+b.Width*b.Height) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// suppressOverlaps drops the lower-confidence of any pair whose IoU exceeds
// the threshold. Equal overlap at exactly the threshold keeps both.
func suppressOverlaps(faces []detector.Face) []detector.Face {
	sorted := make([]detector.Face, len(faces))
	copy(sorted, faces)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := sorted[:0]
	for _, candidate := range sorted {
		overlapped := false
		for _, winner := range kept {
			if iou(candidate.Box, winner.Box) > nmsIoUThreshold {
				overlapped = true
				break
			}
		}
		if !overlapped {
			kept = append(kept, candidate)
		}
	}
	return kept
}

// inOverlayCorner reports whether the box center falls inside one of the four
// corner overlay regions of the canvas.
func inOverlayCorner(b detector.Box, canvasW, canvasH int) bool {
	if canvasW <= 0 {
		canvasW = defaultCanvasWidth
	}
	if canvasH <= 0 {
		canvasH = defaultCanvasHeight
	}

	cx := b.X + b.Width/2
	cy := b.Y + b.Height/2

	left := cx < overlayCornerWidth
	right := cx > canvasW-overlayCornerWidth
	top := cy < overlayCornerHeight
	bottom := cy > canvasH-overlayCornerHeight

	return (left || right) && (top || bottom)
}

// smallNearEdge reports whether an undersized box sits within the edge margin
// of the canvas.
func smallNearEdge(b detector.Box, canvasW, canvasH int) bool {
	if canvasW <= 0 {
		canvasW = defaultCanvasWidth
	}
	if canvasH <= 0 {
		canvasH = defaultCanvasHeight
	}
	if b.Width >= smallFaceSide && b.Height >= smallFaceSide {
		return false
	}
	return b.X <= edgeMargin || b.Y <= edgeMargin ||
		b.X+b.Width >= canvasW-edgeMargin || b.Y+b.Height >= canvasH-edgeMargin
}

// tooDense reports whether more than two other face centers fall within a
// radius of twice the face's larger side. Dense clusters of small boxes are
// crowd/texture false positives.
func tooDense(f detector.Face, all []detector.Face) bool {
	radius := 2 * max(f.Box.Width, f.Box.Height)
	r2 := radius * radius
	cx := f.Box.X + f.Box.Width/2
	cy := f.Box.Y + f.Box.Height/2

	neighbors := 0
	for _, other := range all {
		if other.Box == f.Box && other.Confidence == f.Confidence {
			continue
		}
		ox := other.Box.X + other.Box.Width/2
		oy := other.Box.Y + other.Box.Height/2
		dx, dy := ox-cx, oy-cy
		if dx*dx+dy*dy <= r2 {
			neighbors++
			if neighbors > 2 {
				return true
			}
		}
	}
	return false
}

// filterFaces runs the full candidate pipeline: validity gates, overlap
// suppression, overlay-corner and edge exclusion, density cap and the
// per-frame cap keeping the highest-confidence faces.
func filterFaces(faces []detector.Face, canvasW, canvasH int) []detector.Face {
	valid := make([]detector.Face, 0, len(faces))
	for _, f := range faces {
		if validFace(f) {
			valid = append(valid, f)
		}
	}

	deduped := suppressOverlaps(valid)

	kept := make([]detector.Face, 0, len(deduped))
	for _, f := range deduped {
		if inOverlayCorner(f.Box, canvasW, canvasH) {
			continue
		}
		if smallNearEdge(f.Box, canvasW, canvasH) {
			continue
		}
		if tooDense(f, deduped) {
			continue
		}
		kept = append(kept, f)
	}

	// Already sorted by confidence from suppression.
	if len(kept) > maxFacesPerFrame {
		kept = kept[:maxFacesPerFrame]
	}
	return kept
}
