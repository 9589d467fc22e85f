package imagegen

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/postforge/postforge/domain"
)

// Fit decodes an image, center-crops it to the platform aspect ratio and
// scales it to exactly ImageWidth x ImageHeight, returning PNG bytes.
func Fit(r io.Reader) ([]byte, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode image: empty bounds")
	}

	var crop image.Rectangle
	// Compare w/h against 1200/627 without floats.
	if b.Dx()*domain.ImageHeight > b.Dy()*domain.ImageWidth {
		w := b.Dy() * domain.ImageWidth / domain.ImageHeight
		x0 := b.Min.X + (b.Dx()-w)/2
		crop = image.Rect(x0, b.Min.Y, x0+w, b.Max.Y)
	} else {
		h := b.Dx() * domain.ImageHeight / domain.ImageWidth
		y0 := b.Min.Y + (b.Dy()-h)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+h)
	}
	if crop.Empty() {
		return nil, fmt.Errorf("image %dx%d too small to crop to %d:%d", b.Dx(), b.Dy(), domain.ImageWidth, domain.ImageHeight)
	}

	dst := image.NewRGBA(image.Rect(0, 0, domain.ImageWidth, domain.ImageHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return encodePNG(dst)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RefFor names image bytes by content so identical images share a key.
func RefFor(data []byte) string {
	sum := sha256.Sum256(data)
	return "images/" + hex.EncodeToString(sum[:8]) + ".png"
}

func newArtifact(data []byte, d domain.Draft, prompt string, at time.Time) domain.ImageArtifact {
	return domain.ImageArtifact{
		Ref:          RefFor(data),
		Data:         data,
		MIMEType:     "image/png",
		Width:        domain.ImageWidth,
		Height:       domain.ImageHeight,
		DraftVersion: d.Version,
		Prompt:       prompt,
		AltText:      AltText(d),
		CreatedAt:    at,
	}
}
