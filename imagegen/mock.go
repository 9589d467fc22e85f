package imagegen

import (
	"context"
	"crypto/sha256"
	"image"
	"image/color"
	"time"

	"github.com/postforge/postforge/domain"
)

// MockImager renders a flat gradient seeded by the draft text. Same draft,
// same bytes.
type MockImager struct {
	Now func() time.Time
}

func (m MockImager) CreateImage(ctx context.Context, d domain.Draft, prefs domain.UserPreferences) (domain.ImageArtifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImageArtifact{}, err
	}
	seed := sha256.Sum256([]byte(d.Text))
	from := color.RGBA{seed[0], seed[1], seed[2], 0xff}
	to := color.RGBA{seed[3], seed[4], seed[5], 0xff}

	img := image.NewRGBA(image.Rect(0, 0, domain.ImageWidth, domain.ImageHeight))
	for x := 0; x < domain.ImageWidth; x++ {
		c := lerp(from, to, x, domain.ImageWidth-1)
		for y := 0; y < domain.ImageHeight; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	data, err := encodePNG(img)
	if err != nil {
		return domain.ImageArtifact{}, err
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return newArtifact(data, d, BuildPrompt(d, prefs), now()), nil
}

func lerp(a, b color.RGBA, i, n int) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8((int(x)*(n-i) + int(y)*i) / n) }
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 0xff}
}
