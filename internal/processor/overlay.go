package processor

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

const (
	watermarkMargin = 10.0
	watermarkScale  = 0.05 // text height as a fraction of image width
)

// drawWatermark writes text into the bottom-right corner of img, above a
// baseline watermarkMargin pixels from the bottom edge.
func drawWatermark(img *image.NRGBA, text string) {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(color.White)

	x := float64(dc.Width()) - watermarkMargin
	y := float64(dc.Height()) - watermarkMargin

	// basicfont is a fixed 13px face; scale it to roughly 5% of the width.
	scale := max(1, float64(dc.Width())*watermarkScale/float64(basicfont.Face7x13.Height))
	dc.ScaleAbout(scale, scale, x, y)
	dc.DrawStringAnchored(text, x, y, 1, 0) // right-aligned on the baseline

	draw.Draw(img, img.Bounds(), dc.Image(), image.Point{}, draw.Src)
}
