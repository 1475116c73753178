// Package chart draws wheels of life as PNG radar charts.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/xaenox/wheel-bot/internal/models"
)

type Style int

const (
	// StyleSectors draws one coloured wedge per category.
	StyleSectors Style = iota
	// StyleLegacy draws the original filled polar line plot.
	StyleLegacy
)

func (s Style) String() string {
	if s == StyleLegacy {
		return "legacy"
	}
	return "sectors"
}

func (s Style) fileName(wheelID int64) string {
	if s == StyleLegacy {
		return fmt.Sprintf("wheel_%d.png", wheelID)
	}
	return fmt.Sprintf("wheel_new_%d.png", wheelID)
}

const maxValue = float64(models.MaxScore)

var sectorPalette = []string{
	"#e74c3c", "#e67e22", "#f1c40f", "#2ecc71",
	"#1abc9c", "#3498db", "#9b59b6", "#34495e",
}

// Renderer writes chart images into a directory.
type Renderer struct {
	dir    string
	style  Style
	font   *truetype.Font
	logger *zap.Logger
}

// NewRenderer loads the label font (the bundled Go font when fontPath is empty)
// and makes sure dir exists.
func NewRenderer(dir, fontPath string, logger *zap.Logger) (*Renderer, error) {
	raw := goregular.TTF
	if strings.TrimSpace(fontPath) != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("could not read chart font: %w", err)
		}
		raw = b
	}
	f, err := truetype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("could not parse chart font: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create charts dir: %w", err)
	}
	return &Renderer{dir: dir, style: StyleSectors, font: f, logger: logger}, nil
}

// WithStyle returns a renderer sharing dir and font but drawing in style s.
func (r *Renderer) WithStyle(s Style) *Renderer {
	cp := *r
	cp.style = s
	return &cp
}

func (r *Renderer) Style() Style { return r.style }

// face is created per drawing since truetype faces cache glyphs and are not
// safe for concurrent use.
func (r *Renderer) face(size float64) font.Face {
	return truetype.NewFace(r.font, &truetype.Options{Size: size})
}

// Path returns where the image of wheelID in this renderer's style lives.
func (r *Renderer) Path(wheelID int64) string {
	return filepath.Join(r.dir, r.style.fileName(wheelID))
}

// Existing returns the path of a previously rendered image, if there is one.
func (r *Renderer) Existing(wheelID int64) (string, bool) {
	p := r.Path(wheelID)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Render draws the wheel and returns the PNG path.
func (r *Renderer) Render(wheelID int64, scores []models.Score) (string, error) {
	if len(scores) == 0 {
		return "", errors.New("no scores to render")
	}
	var dc *gg.Context
	switch r.style {
	case StyleLegacy:
		dc = r.drawLegacy(scores)
	default:
		dc = r.drawSectors(scores)
	}

	path := r.Path(wheelID)
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("failed to save chart: %w", err)
	}
	r.logger.Debug("Rendered wheel chart",
		zap.Int64("wheel_id", wheelID),
		zap.Stringer("style", r.style),
		zap.String("path", path))
	return path, nil
}

// RenderComparison overlays two wheels aligned to the fixed category order.
func (r *Renderer) RenderComparison(wheelA, wheelB int64, scoresA, scoresB []models.Score, labelA, labelB string) (string, error) {
	a := models.AlignScores(scoresA)
	b := models.AlignScores(scoresB)

	const size = 1000
	dc := gg.NewContext(size, size)
	dc.SetColor(color.White)
	dc.Clear()

	cx, cy, radius := float64(size)/2, float64(size)/2+30, 340.0
	r.drawGrid(dc, cx, cy, radius, len(a))
	r.drawPolygon(dc, cx, cy, radius, a, "#e74c3c", 0.15)
	r.drawPolygon(dc, cx, cy, radius, b, "#3498db", 0.15)
	r.drawLabels(dc, cx, cy, radius, a, 20, false)

	dc.SetFontFace(r.face(22))
	legend := []struct {
		label string
		hex   string
	}{{labelA, "#e74c3c"}, {labelB, "#3498db"}}
	for i, item := range legend {
		y := 40 + float64(i)*34
		dc.SetHexColor(item.hex)
		dc.DrawRectangle(size-260, y-12, 24, 24)
		dc.Fill()
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(item.label, size-224, y, 0, 0.35)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("comparison_%d_%d.png", wheelA, wheelB))
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("failed to save comparison chart: %w", err)
	}
	return path, nil
}

// RemoveWheelImages deletes every image rendered for the given wheels. Missing
// files are not an error; other failures are collected and returned together.
func (r *Renderer) RemoveWheelImages(wheelIDs []int64) error {
	var errs []error
	for _, id := range wheelIDs {
		for _, style := range []Style{StyleLegacy, StyleSectors} {
			p := filepath.Join(r.dir, style.fileName(id))
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func angleOf(i, n int) float64 {
	return -math.Pi/2 + 2*math.Pi*float64(i)/float64(n)
}

func clampValue(v int) float64 {
	return math.Max(0, math.Min(maxValue, float64(v)))
}

func (r *Renderer) drawSectors(scores []models.Score) *gg.Context {
	const size = 900
	dc := gg.NewContext(size, size)
	dc.SetColor(color.White)
	dc.Clear()

	cx, cy, radius := float64(size)/2, float64(size)/2, 300.0
	n := len(scores)
	half := math.Pi / float64(n)

	for i, sc := range scores {
		a := angleOf(i, n)
		rv := radius * clampValue(sc.Value) / maxValue
		dc.SetHexColor(sectorPalette[i%len(sectorPalette)])
		dc.MoveTo(cx, cy)
		dc.DrawArc(cx, cy, rv, a-half, a+half)
		dc.ClosePath()
		dc.Fill()
	}

	dc.SetRGBA(0, 0, 0, 0.15)
	dc.SetLineWidth(1)
	for v := 1; v <= models.MaxScore; v++ {
		dc.DrawCircle(cx, cy, radius*float64(v)/maxValue)
		dc.Stroke()
	}
	for i := 0; i < n; i++ {
		a := angleOf(i, n) - half
		dc.DrawLine(cx, cy, cx+radius*math.Cos(a), cy+radius*math.Sin(a))
		dc.Stroke()
	}

	r.drawLabels(dc, cx, cy, radius, scores, 20, true)
	return dc
}

func (r *Renderer) drawLegacy(scores []models.Score) *gg.Context {
	const size = 800
	dc := gg.NewContext(size, size)
	dc.SetColor(color.White)
	dc.Clear()

	cx, cy, radius := float64(size)/2, float64(size)/2, 280.0
	r.drawGrid(dc, cx, cy, radius, len(scores))
	r.drawPolygon(dc, cx, cy, radius, scores, "#32a8d9", 0.25)
	r.drawLabels(dc, cx, cy, radius, scores, 18, false)
	return dc
}

func (r *Renderer) drawGrid(dc *gg.Context, cx, cy, radius float64, n int) {
	dc.SetRGBA(0, 0, 0, 0.2)
	dc.SetLineWidth(1)
	for v := 1; v <= models.MaxScore; v++ {
		dc.DrawCircle(cx, cy, radius*float64(v)/maxValue)
		dc.Stroke()
	}
	for i := 0; i < n; i++ {
		a := angleOf(i, n)
		dc.DrawLine(cx, cy, cx+radius*math.Cos(a), cy+radius*math.Sin(a))
		dc.Stroke()
	}

	dc.SetFontFace(r.face(12))
	dc.SetRGBA(0, 0, 0, 0.5)
	for v := 2; v <= models.MaxScore; v += 2 {
		dc.DrawStringAnchored(fmt.Sprint(v), cx+4, cy-radius*float64(v)/maxValue, 0, 1)
	}
}

func (r *Renderer) drawPolygon(dc *gg.Context, cx, cy, radius float64, scores []models.Score, hex string, alpha float64) {
	n := len(scores)
	points := make([]gg.Point, n)
	for i, sc := range scores {
		a := angleOf(i, n)
		rv := radius * clampValue(sc.Value) / maxValue
		points[i] = gg.Point{X: cx + rv*math.Cos(a), Y: cy + rv*math.Sin(a)}
	}

	dc.NewSubPath()
	for i, p := range points {
		if i == 0 {
			dc.MoveTo(p.X, p.Y)
		} else {
			dc.LineTo(p.X, p.Y)
		}
	}
	dc.ClosePath()

	red, green, blue := hexRGB(hex)
	dc.SetRGBA(red, green, blue, alpha)
	dc.FillPreserve()
	dc.SetRGB(red, green, blue)
	dc.SetLineWidth(3)
	dc.Stroke()

	for _, p := range points {
		dc.DrawCircle(p.X, p.Y, 5)
		dc.Fill()
	}
}

func (r *Renderer) drawLabels(dc *gg.Context, cx, cy, radius float64, scores []models.Score, fontSize float64, withValues bool) {
	dc.SetFontFace(r.face(fontSize))
	dc.SetColor(color.Black)
	n := len(scores)
	for i, sc := range scores {
		a := angleOf(i, n)
		lx := cx + (radius+36)*math.Cos(a)
		ly := cy + (radius+36)*math.Sin(a)
		ax := (1 - math.Cos(a)) / 2
		text := sc.Category
		if withValues {
			text = fmt.Sprintf("%s (%d)", sc.Category, sc.Value)
		}
		dc.DrawStringAnchored(text, lx, ly, ax, 0.5)
	}
}

func hexRGB(hex string) (float64, float64, float64) {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return 0, 0, 0
	}
	return float64(r) / 255, float64(g) / 255, float64(b) / 255
}
