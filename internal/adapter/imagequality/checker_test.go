package imagequality

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkerboard draws alternating 4px squares of lo and hi luma.
func checkerboard(w, h int, lo, hi uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := lo
			if (x/4+y/4)%2 == 0 {
				v = hi
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func flat(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestEvaluate(t *testing.T) {
	c := NewChecker(DefaultThresholds)

	tests := []struct {
		name   string
		img    image.Image
		issues []string
	}{
		{"sharp and well lit", checkerboard(512, 512, 60, 200), nil},
		{"too small", checkerboard(100, 100, 60, 200), []string{IssueTooSmall}},
		{"dark", checkerboard(512, 512, 0, 40), []string{IssueTooDark}},
		{"overexposed", checkerboard(512, 512, 220, 255), []string{IssueTooBright}},
		{"featureless", flat(512, 512, 128), []string{IssueBlurry}},
		{"small dark and flat", flat(64, 64, 10), []string{IssueTooSmall, IssueTooDark, IssueBlurry}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := c.Evaluate(tt.img)
			assert.Equal(t, tt.issues, rep.Issues)
			assert.Equal(t, len(tt.issues) == 0, rep.Valid)
		})
	}
}

func TestCheck_DecodesFile(t *testing.T) {
	path := writePNG(t, checkerboard(400, 300, 50, 210))

	rep, err := NewChecker(DefaultThresholds).Check(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, rep.Valid)
}

func TestCheck_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	rep, err := NewChecker(DefaultThresholds).Check(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, rep.Valid)
	assert.Equal(t, []string{IssueUnsupported}, rep.Issues)
}

func TestCheck_MissingFile(t *testing.T) {
	_, err := NewChecker(DefaultThresholds).Check(context.Background(), "/no/such/photo.jpg")
	require.Error(t, err)
}
