package recognition

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/egrangel/facerecon-sub001/internal/detector"
)

const faceCropPadding = 0.15

// ImageStore writes detection artifacts under the uploads root: the
// annotated full frame and a padded crop per face. URLs returned are
// root-relative paths served by the static file handler.
type ImageStore struct {
	root string
}

func NewImageStore(root string) *ImageStore {
	return &ImageStore{root: root}
}

// SaveFullFrame decodes the JPEG, draws a rectangle around every face and
// writes it to uploads/detections. Returns the public URL path.
func (s *ImageStore) SaveFullFrame(jpegFrame []byte, faces []detector.Face, epochMs int64) (string, error) {
	src, err := jpeg.Decode(bytes.NewReader(jpegFrame))
	if err != nil {
		return "", fmt.Errorf("decoding frame: %w", err)
	}

	annotated := image.NewRGBA(src.Bounds())
	draw.Draw(annotated, src.Bounds(), src, src.Bounds().Min, draw.Src)
	for _, f := range faces {
		drawRect(annotated, f.Box, color.RGBA{R: 0, G: 255, B: 0, A: 255})
	}

	name := fmt.Sprintf("detection_%d.jpg", epochMs)
	if err := s.writeJPEG(filepath.Join("detections", name), annotated); err != nil {
		return "", err
	}
	return "/uploads/detections/" + name, nil
}

// SaveFaceCrop cuts the face region out of the frame with padding on every
// side and writes it to uploads/faces.
func (s *ImageStore) SaveFaceCrop(jpegFrame []byte, box detector.Box, epochMs int64, faceIndex int) (string, error) {
	src, err := jpeg.Decode(bytes.NewReader(jpegFrame))
	if err != nil {
		return "", fmt.Errorf("decoding frame: %w", err)
	}

	bounds := src.Bounds()
	padX := int(float64(box.Width) * faceCropPadding)
	padY := int(float64(box.Height) * faceCropPadding)

	x1 := max(bounds.Min.X, box.X-padX)
	y1 := max(bounds.Min.Y, box.Y-padY)
	x2 := min(bounds.Max.X, box.X+box.Width+padX)
	y2 := min(bounds.Max.Y, box.Y+box.Height+padY)
	if x2 <= x1 || y2 <= y1 {
		return "", fmt.Errorf("face box %+v outside frame %v", box, bounds)
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	draw.Draw(crop, crop.Bounds(), src, image.Pt(x1, y1), draw.Src)

	name := fmt.Sprintf("face_%d_%d.jpg", epochMs, faceIndex)
	if err := s.writeJPEG(filepath.Join("faces", name), crop); err != nil {
		return "", err
	}
	return "/uploads/faces/" + name, nil
}

func (s *ImageStore) writeJPEG(relPath string, img image.Image) error {
	full := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	f, err := os.Create(full)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 85}); err != nil {
		os.Remove(full)
		return err
	}
	return nil
}

func drawRect(img *image.RGBA, box detector.Box, c color.Color) {
	const thickness = 2
	x2, y2 := box.X+box.Width, box.Y+box.Height
	for t := 0; t < thickness; t++ {
		for x := box.X; x <= x2; x++ {
			img.Set(x, box.Y+t, c)
			img.Set(x, y2-t, c)
		}
		for y := box.Y; y <= y2; y++ {
			img.Set(box.X+t, y, c)
			img.Set(x2-t, y, c)
		}
	}
}
