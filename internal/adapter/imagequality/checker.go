// Package imagequality is the local pre-check run on a photo before it is
// sent for classification.
package imagequality

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"os"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	_ "golang.org/x/image/webp"
)

// Issue texts returned in domain.QualityReport.
const (
	IssueUnsupported = "unsupported image format"
	IssueTooSmall    = "image resolution too low"
	IssueTooDark     = "image too dark"
	IssueTooBright   = "image overexposed"
	IssueBlurry      = "image too blurry"
)

// Thresholds tune the checker. Luma values are 0–255.
type Thresholds struct {
	MinShortEdge   int
	MinMeanLuma    float64
	MaxMeanLuma    float64
	MinSharpness   float64 // variance of the Laplacian on the sampled grid
	SampleLongEdge int
}

// DefaultThresholds suit phone photos of a single leaf.
var DefaultThresholds = Thresholds{
	MinShortEdge:   224,
	MinMeanLuma:    40,
	MaxMeanLuma:    225,
	MinSharpness:   40,
	SampleLongEdge: 256,
}

// Checker implements domain.ImageQualityChecker.
type Checker struct {
	t Thresholds
}

// NewChecker creates a Checker.
func NewChecker(t Thresholds) *Checker {
	if t.SampleLongEdge <= 0 {
		t.SampleLongEdge = DefaultThresholds.SampleLongEdge
	}
	return &Checker{t: t}
}

// Check decodes the image and reports every failed check. A file that cannot
// be opened is an error; one that cannot be decoded is an invalid report.
func (c *Checker) Check(_ context.Context, imagePath string) (domain.QualityReport, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return domain.QualityReport{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return invalid(IssueUnsupported), nil
	}
	return c.Evaluate(img), nil
}

// Evaluate runs the checks on a decoded image.
func (c *Checker) Evaluate(img image.Image) domain.QualityReport {
	var issues []string

	b := img.Bounds()
	if min(b.Dx(), b.Dy()) < c.t.MinShortEdge {
		issues = append(issues, IssueTooSmall)
	}

	gray := sampleLuma(img, c.t.SampleLongEdge)
	mean := gray.mean()
	switch {
	case mean < c.t.MinMeanLuma:
		issues = append(issues, IssueTooDark)
	case mean > c.t.MaxMeanLuma:
		issues = append(issues, IssueTooBright)
	}
	if gray.laplacianVariance() < c.t.MinSharpness {
		issues = append(issues, IssueBlurry)
	}

	return domain.QualityReport{Valid: len(issues) == 0, Issues: issues}
}

func invalid(issue string) domain.QualityReport {
	return domain.QualityReport{Valid: false, Issues: []string{issue}}
}

// lumaGrid is a downsampled grayscale copy.
type lumaGrid struct {
	w, h int
	px   []float64
}

func sampleLuma(img image.Image, longEdge int) lumaGrid {
	b := img.Bounds()
	step := max(1, max(b.Dx(), b.Dy())/longEdge)
	g := lumaGrid{w: (b.Dx() + step - 1) / step, h: (b.Dy() + step - 1) / step}
	g.px = make([]float64, 0, g.w*g.h)
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			g.px = append(g.px, float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y))
		}
	}
	return g
}

func (g lumaGrid) at(x, y int) float64 { return g.px[y*g.w+x] }

func (g lumaGrid) mean() float64 {
	if len(g.px) == 0 {
		return 0
	}
	var sum float64
	for _, v := range g.px {
		sum += v
	}
	return sum / float64(len(g.px))
}

// laplacianVariance is the variance of the 4-neighbour Laplacian; sharp
// images have strong edges and a high variance.
func (g lumaGrid) laplacianVariance() float64 {
	if g.w < 3 || g.h < 3 {
		return 0
	}
	var sum, sumSq float64
	n := 0
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			l := g.at(x-1, y) + g.at(x+1, y) + g.at(x, y-1) + g.at(x, y+1) - 4*g.at(x, y)
			sum += l
			sumSq += l * l
			n++
		}
	}
	m := sum / float64(n)
	return sumSq/float64(n) - m*m
}
