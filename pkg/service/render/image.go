package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	imageBackground = color.RGBA{R: 173, G: 216, B: 230, A: 255} // light blue
	watermarkRed    = color.RGBA{R: 220, G: 20, B: 20, A: 255}
)

func (p *Placeholder) renderImage(req Request) (*Result, error) {
	width, height := req.Width, req.Height
	if width == 0 {
		width = DefaultImageWidth
	}
	if height == 0 {
		height = DefaultImageHeight
	}
	if width < 1 || height < 1 || width > maxImageDimension || height > maxImageDimension {
		return nil, fmt.Errorf("image size %dx%d out of range", width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(imageBackground), image.Point{}, draw.Src)

	drawText(img, 10, 20, color.Black, "generated: "+req.Description)
	if req.Preview {
		drawText(img, width/2-30, height/2, watermarkRed, "PREVIEW")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &Result{Data: buf.Bytes(), ContentType: "image/png", Ext: ".png"}, nil
}

func drawText(img *image.RGBA, x, y int, c color.Color, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
