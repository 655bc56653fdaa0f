package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	pixelsPerLabel = 120.0
	yTicks         = 4

	defaultPlotWidth  = 1200
	defaultPlotHeight = 480

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 50
	defaultRightBorder  = 30
)

var (
	colorA      = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorB      = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	colorMarker = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	colorFrame  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the value scale
	Bottom int // Space for the x scale and legend
	Right  int
}

// PlotConfig holds the layout of a rendered plot
type PlotConfig struct {
	Width        int // Plot area width in pixels
	Height       int // Plot area height in pixels
	FontSize     float64
	BorderConfig BorderConfig
}

// Series is one line of a plot
type Series struct {
	Label string
	Color color.Color
	X, Y  []float64
}

// Plot describes a line chart
type Plot struct {
	Title  string
	XUnit  string // SI unit of the x axis
	Series []Series
	Marker *float64 // x value highlighted with a vertical line
}

// PlotRenderer draws line charts of correlation data
type PlotRenderer struct {
	config PlotConfig
}

func NewPlotRenderer(config PlotConfig) *PlotRenderer {
	// Set defaults for zero values
	if config.Width == 0 {
		config.Width = defaultPlotWidth
	}
	if config.Height == 0 {
		config.Height = defaultPlotHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &PlotRenderer{config: config}
}

// extent is the value range covered by a plot
type extent struct {
	xMin, xMax float64
	yMin, yMax float64
}

func plotExtent(p *Plot) (extent, error) {
	e := extent{xMin: math.Inf(1), xMax: math.Inf(-1), yMin: math.Inf(1), yMax: math.Inf(-1)}
	for _, s := range p.Series {
		if len(s.X) != len(s.Y) {
			return e, fmt.Errorf("series %s has %d x and %d y values", s.Label, len(s.X), len(s.Y))
		}
		for i := range s.X {
			if !finite(s.X[i]) || !finite(s.Y[i]) {
				continue
			}
			e.xMin, e.xMax = math.Min(e.xMin, s.X[i]), math.Max(e.xMax, s.X[i])
			e.yMin, e.yMax = math.Min(e.yMin, s.Y[i]), math.Max(e.yMax, s.Y[i])
		}
	}

	if math.IsInf(e.xMin, 0) {
		return e, fmt.Errorf("plot %s has no data", p.Title)
	}
	if e.xMax == e.xMin {
		e.xMax = e.xMin + 1
	}
	if e.yMax == e.yMin {
		e.yMin, e.yMax = e.yMin-1, e.yMax+1
	}
	return e, nil
}

// Render creates an image of the plot with scales, title and legend
func (r *PlotRenderer) Render(p *Plot) (*image.RGBA, error) {
	ext, err := plotExtent(p)
	if err != nil {
		return nil, err
	}

	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width+b.Left+b.Right, r.config.Height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+r.config.Height)
	drawFrame(img, area)

	ann, err := newAnnotator(r.config.FontSize)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	ann.context.SetClip(img.Bounds())
	ann.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, image.Rectangle, *Plot, extent) error
	}{
		{"drawing x scale", ann.drawXScale},
		{"drawing y scale", ann.drawYScale},
		{"drawing title", ann.drawTitle},
		{"drawing legend", ann.drawLegend},
	}
	for _, op := range ops {
		if err = op.fn(img, area, p, ext); err != nil {
			return nil, fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	for _, s := range p.Series {
		renderSeries(img, area, ext, s)
	}

	if p.Marker != nil {
		x := area.Min.X + int(math.Round((*p.Marker-ext.xMin)/(ext.xMax-ext.xMin)*float64(area.Dx()-1)))
		for y := area.Min.Y; y < area.Max.Y; y++ {
			if (y/4)%2 == 0 {
				img.Set(x, y, colorMarker)
			}
		}
	}

	return img, nil
}

// renderSeries draws a series as a per-column envelope, so any number of points maps onto
// the plot width.
func renderSeries(img *image.RGBA, area image.Rectangle, ext extent, s Series) {
	type column struct {
		first, last, min, max int
		set                   bool
	}

	cols := make([]column, area.Dx())
	for i := range s.X {
		if !finite(s.X[i]) || !finite(s.Y[i]) {
			continue
		}

		cx := int(math.Round((s.X[i] - ext.xMin) / (ext.xMax - ext.xMin) * float64(area.Dx()-1)))
		py := area.Max.Y - 1 - int(math.Round((s.Y[i]-ext.yMin)/(ext.yMax-ext.yMin)*float64(area.Dy()-1)))

		c := &cols[cx]
		if !c.set {
			*c = column{first: py, last: py, min: py, max: py, set: true}
			continue
		}
		c.last = py
		c.min, c.max = min(c.min, py), max(c.max, py)
	}

	prev := -1
	for cx, c := range cols {
		if !c.set {
			continue
		}
		x := area.Min.X + cx
		for y := c.min; y <= c.max; y++ {
			img.Set(x, y, s.Color)
		}
		if prev >= 0 {
			drawLine(img, area.Min.X+prev, cols[prev].last, x, c.first, s.Color)
		}
		prev = cx
	}
}

func drawFrame(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X - 1; x <= area.Max.X; x++ {
		img.Set(x, area.Min.Y-1, colorFrame)
		img.Set(x, area.Max.Y, colorFrame)
	}
	for y := area.Min.Y - 1; y <= area.Max.Y; y++ {
		img.Set(area.Min.X-1, y, colorFrame)
		img.Set(area.Max.X, y, colorFrame)
	}
}

// drawLine draws a line using Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		if e2 := 2 * e; e2 >= dy {
			e += dy
			x0 += sx
		} else {
			e += dx
			y0 += sy
		}
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
}

func newAnnotator(size float64) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(size)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    size,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawXScale(img *image.RGBA, area image.Rectangle, p *Plot, ext extent) error {
	step := niceStep(ext.xMax-ext.xMin, float64(area.Dx())/pixelsPerLabel)
	textY := area.Max.Y + tickMarkLength + a.fontHeight()

	for v := math.Ceil(ext.xMin/step) * step; v <= ext.xMax; v += step {
		x := area.Min.X + int(math.Round((v-ext.xMin)/(ext.xMax-ext.xMin)*float64(area.Dx()-1)))

		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatValue(v, step, p.XUnit)
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, textY)); err != nil {
			return fmt.Errorf("drawing label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawYScale(img *image.RGBA, area image.Rectangle, _ *Plot, ext extent) error {
	metrics := a.fontFace.Metrics()
	fontHeight := a.fontHeight()

	for i := 0; i <= yTicks; i++ {
		v := ext.yMin + float64(i)*(ext.yMax-ext.yMin)/yTicks
		y := area.Max.Y - 1 - int(math.Round(float64(i)*float64(area.Dy()-1)/yTicks))

		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%.3g", v)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(area.Min.X-tickMarkLength-3-width.Round(), y+fontHeight/2-metrics.Descent.Round())
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTitle(_ *image.RGBA, area image.Rectangle, p *Plot, _ extent) error {
	_, err := a.context.DrawString(p.Title, freetype.Pt(area.Min.X, area.Min.Y-a.fontHeight()))
	return err
}

func (a *annotator) drawLegend(img *image.RGBA, area image.Rectangle, p *Plot, _ extent) error {
	x := area.Min.X
	y := img.Bounds().Max.Y - a.fontHeight()/2

	for _, s := range p.Series {
		if s.Label == "" {
			continue
		}

		for i := 0; i < 20; i++ {
			img.Set(x+i, y-a.fontHeight()/3, s.Color)
			img.Set(x+i, y-a.fontHeight()/3+1, s.Color)
		}

		end, err := a.context.DrawString(s.Label, freetype.Pt(x+25, y))
		if err != nil {
			return err
		}
		x = end.X.Round() + 30
	}
	return nil
}

// niceStep returns a 1, 2 or 5 times power of ten step giving about count intervals over span
func niceStep(span, count float64) float64 {
	if count < 1 {
		count = 1
	}
	rough := span / count
	mag := math.Pow(10, math.Floor(math.Log10(rough)))

	for _, m := range []float64{1, 2, 5, 10} {
		if m*mag >= rough {
			return m * mag
		}
	}
	return 10 * mag
}

func formatValue(v, step float64, unit string) string {
	if math.Abs(v) < step/2 {
		v = 0
	}
	if unit == "" {
		return fmt.Sprintf("%g", v)
	}
	return humanize.SIWithDigits(v, 2, unit)
}

func savePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	return png.Encode(f, img)
}
