// Package visualization renders segmentation overlays for visual review of
// processed slices. A calibrated slice is windowed into a grayscale base
// image and the segmentation labels are blended on top in color.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"bodycomp/internal/models"
	"bodycomp/pkg/calibration"
)

// Soft tissue display window in Hounsfield units
const (
	DefaultWindowCenter = 40.0
	DefaultWindowWidth  = 400.0
)

// labelPalette maps segmentation classes to display colors. Classes beyond
// the palette wrap around.
var labelPalette = []color.RGBA{
	{R: 230, G: 60, B: 60, A: 255},
	{R: 60, G: 180, B: 75, A: 255},
	{R: 60, G: 100, B: 240, A: 255},
	{R: 245, G: 190, B: 30, A: 255},
	{R: 150, G: 60, B: 200, A: 255},
	{R: 60, G: 200, B: 200, A: 255},
}

// Overlay renders one slice with its segmentation mask
type Overlay struct {
	slice models.Slice
	tf    calibration.Transform

	// display window in Hounsfield units
	windowCenter float64
	windowWidth  float64

	// blend strength of the colored labels over the grayscale base
	alpha float64
}

// NewOverlay creates an overlay renderer for a slice. The transform maps
// the slice's stored pixel values into Hounsfield units before windowing.
func NewOverlay(sl models.Slice, tf calibration.Transform) *Overlay {
	return &Overlay{
		slice:        sl,
		tf:           tf,
		windowCenter: DefaultWindowCenter,
		windowWidth:  DefaultWindowWidth,
		alpha:        0.45,
	}
}

// SetWindow overrides the display window
func (o *Overlay) SetWindow(center, width float64) {
	o.windowCenter = center
	o.windowWidth = width
}

// Render produces the blended overlay image. A nil mask renders the
// windowed base image alone.
func (o *Overlay) Render(mask *models.SegmentationMask) (image.Image, error) {
	w, h := o.slice.Cols, o.slice.Rows
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("visualization: slice has no pixel grid")
	}
	if mask != nil && (mask.Width != w || mask.Height != h) {
		return nil, fmt.Errorf("visualization: mask is %dx%d but slice is %dx%d",
			mask.Width, mask.Height, w, h)
	}

	lo := o.windowCenter - o.windowWidth/2
	hi := o.windowCenter + o.windowWidth/2

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hu := float64(o.tf.Apply(float64(o.slice.At(x, y))))
			gray := windowToGray(hu, lo, hi)
			c := color.RGBA{R: gray, G: gray, B: gray, A: 255}

			if mask != nil {
				if label := mask.At(x, y); label != 0 {
					c = blend(c, paletteColor(label), o.alpha)
				}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

// RenderScaled renders the overlay and scales its longest edge to maxDim.
// Images already within maxDim are returned unscaled.
func (o *Overlay) RenderScaled(mask *models.SegmentationMask, maxDim int) (image.Image, error) {
	img, err := o.Render(mask)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}
	if maxDim <= 0 || longest <= maxDim {
		return img, nil
	}

	scale := float64(maxDim) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0,
		int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst, nil
}

// Save writes the rendered image as a PNG file
func (o *Overlay) Save(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

func windowToGray(hu, lo, hi float64) uint8 {
	if hu <= lo {
		return 0
	}
	if hu >= hi {
		return 255
	}
	return uint8((hu - lo) / (hi - lo) * 255)
}

func paletteColor(label uint8) color.RGBA {
	return labelPalette[int(label-1)%len(labelPalette)]
}

func blend(base, over color.RGBA, alpha float64) color.RGBA {
	mix := func(b, o uint8) uint8 {
		return uint8(float64(b)*(1-alpha) + float64(o)*alpha)
	}
	return color.RGBA{
		R: mix(base.R, over.R),
		G: mix(base.G, over.G),
		B: mix(base.B, over.B),
		A: 255,
	}
}
