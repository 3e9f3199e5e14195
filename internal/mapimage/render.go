// Package mapimage renders month-level forecast maps as PNG. Rendering is
// deterministic: the same records always produce byte-identical output.
package mapimage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/aqib-ilyas/conflictlens/internal/models"
)

const (
	Width  = 800
	Height = 400

	cellSize = 4
)

var (
	background = color.RGBA{16, 24, 38, 255}
	gridline   = color.RGBA{32, 44, 62, 255}
	captionCol = color.RGBA{200, 208, 218, 255}
)

// Render draws the given enriched forecasts on an equirectangular world
// canvas. Each grid cell is a small square colored by its escalation
// probability; the caption names the calendar month and cell count.
func Render(records []models.EnrichedForecast, caption string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	fill(img, background)
	drawGraticule(img)

	for i := range records {
		r := &records[i]
		if r.Latitude == nil || r.Longitude == nil {
			continue
		}
		x := int((*r.Longitude + 180) / 360 * Width)
		y := int((90 - *r.Latitude) / 180 * Height)

		p := 0.0
		if r.MainDich != nil {
			p = *r.MainDich
		}
		drawCell(img, x, y, intensityColor(p))
	}

	drawText(img, fmt.Sprintf("%s · %d cells", caption, len(records)), 10, Height-10)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return buf.Bytes(), nil
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawGraticule draws 30-degree meridians and parallels.
func drawGraticule(img *image.RGBA) {
	for lon := -180; lon <= 180; lon += 30 {
		x := (lon + 180) * Width / 360
		if x >= Width {
			x = Width - 1
		}
		for y := 0; y < Height; y++ {
			img.SetRGBA(x, y, gridline)
		}
	}
	for lat := -90; lat <= 90; lat += 30 {
		y := (90 - lat) * Height / 180
		if y >= Height {
			y = Height - 1
		}
		for x := 0; x < Width; x++ {
			img.SetRGBA(x, y, gridline)
		}
	}
}

func drawCell(img *image.RGBA, cx, cy int, c color.RGBA) {
	for dy := 0; dy < cellSize; dy++ {
		for dx := 0; dx < cellSize; dx++ {
			x, y := cx+dx-cellSize/2, cy+dy-cellSize/2
			if x >= 0 && x < Width && y >= 0 && y < Height {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// intensityColor ramps from muted blue through amber to red as the
// escalation probability rises.
func intensityColor(p float64) color.RGBA {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	switch {
	case p < 0.2:
		t := p / 0.2
		return lerp(color.RGBA{58, 92, 140, 255}, color.RGBA{96, 140, 112, 255}, t)
	case p < 0.5:
		t := (p - 0.2) / 0.3
		return lerp(color.RGBA{96, 140, 112, 255}, color.RGBA{222, 168, 62, 255}, t)
	default:
		t := (p - 0.5) / 0.5
		return lerp(color.RGBA{222, 168, 62, 255}, color.RGBA{206, 58, 48, 255}, t)
	}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	ch := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.RGBA{ch(a.R, b.R), ch(a.G, b.G), ch(a.B, b.B), 255}
}

func drawText(img *image.RGBA, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(captionCol),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// Cache keeps rendered month maps in memory. Maps are deterministic for a
// loaded dataset, so entries never expire; Reset clears the cache after a
// reload.
type Cache struct {
	mu   sync.RWMutex
	maps map[int64][]byte
}

func NewCache() *Cache {
	return &Cache{maps: make(map[int64][]byte)}
}

func (c *Cache) Get(monthID int64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.maps[monthID]
	return data, ok
}

func (c *Cache) Set(monthID int64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maps[monthID] = data
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maps = make(map[int64][]byte)
}
