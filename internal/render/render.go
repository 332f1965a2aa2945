// Package render draws world snapshots to images.
package render

import (
	"image"
	"image/color"
	"io"
	"math"

	"collide2d/internal/world"

	"github.com/fogleman/gg"
)

var (
	backgroundColor = color.RGBA{12, 12, 28, 255}
	gridColor       = color.RGBA{30, 30, 45, 255}
	bodyColor       = color.RGBA{90, 160, 255, 200}
	hitColor        = color.RGBA{255, 96, 80, 220}
	aabbColor       = color.RGBA{120, 120, 150, 160}
	pairColor       = color.RGBA{255, 210, 60, 200}
)

// Renderer draws snapshots at a fixed image size, scaling the world to fit.
type Renderer struct {
	Width, Height int
	GridSize      float64 // world units between grid lines, 0 disables
	DrawAABBs     bool
	DrawPairs     bool
}

// NewRenderer returns a renderer with grid, AABBs and pair links enabled.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		Width:     width,
		Height:    height,
		GridSize:  100,
		DrawAABBs: true,
		DrawPairs: true,
	}
}

// Render draws snap into a new image.
func (r *Renderer) Render(snap *world.Snapshot) image.Image {
	return r.draw(snap).Image()
}

// WritePNG renders snap and encodes it as PNG to w.
func (r *Renderer) WritePNG(w io.Writer, snap *world.Snapshot) error {
	return r.draw(snap).EncodePNG(w)
}

func (r *Renderer) draw(snap *world.Snapshot) *gg.Context {
	dc := gg.NewContext(r.Width, r.Height)

	dc.SetColor(backgroundColor)
	dc.DrawRectangle(0, 0, float64(r.Width), float64(r.Height))
	dc.Fill()

	if snap == nil || snap.Width <= 0 || snap.Height <= 0 {
		return dc
	}

	scale := math.Min(float64(r.Width)/snap.Width, float64(r.Height)/snap.Height)
	dc.Scale(scale, scale)

	if r.GridSize > 0 {
		r.drawGrid(dc, snap, scale)
	}

	colliding := make(map[uint64]bool, len(snap.Pairs)*2)
	for _, p := range snap.Pairs {
		colliding[p.A] = true
		colliding[p.B] = true
	}

	index := make(map[uint64]int, len(snap.Bodies))
	for i, b := range snap.Bodies {
		index[b.ID] = i
		r.drawBody(dc, b, colliding[b.ID], scale)
	}

	if r.DrawPairs {
		dc.SetColor(pairColor)
		dc.SetLineWidth(1 / scale)
		for _, p := range snap.Pairs {
			ia, okA := index[p.A]
			ib, okB := index[p.B]
			if !okA || !okB {
				continue
			}
			a, b := snap.Bodies[ia], snap.Bodies[ib]
			dc.DrawLine(a.X, a.Y, b.X, b.Y)
			dc.Stroke()
		}
	}
	return dc
}

func (r *Renderer) drawGrid(dc *gg.Context, snap *world.Snapshot, scale float64) {
	dc.SetColor(gridColor)
	dc.SetLineWidth(1 / scale)
	for x := 0.0; x <= snap.Width; x += r.GridSize {
		dc.DrawLine(x, 0, x, snap.Height)
		dc.Stroke()
	}
	for y := 0.0; y <= snap.Height; y += r.GridSize {
		dc.DrawLine(0, y, snap.Width, y)
		dc.Stroke()
	}
}

func (r *Renderer) drawBody(dc *gg.Context, b world.BodySnapshot, hit bool, scale float64) {
	if hit {
		dc.SetColor(hitColor)
	} else {
		dc.SetColor(bodyColor)
	}
	if b.Kind == "box" {
		dc.DrawRectangle(b.X-b.HalfW, b.Y-b.HalfH, 2*b.HalfW, 2*b.HalfH)
	} else {
		dc.DrawCircle(b.X, b.Y, b.Radius)
	}
	dc.Fill()

	if r.DrawAABBs {
		if hit {
			dc.SetColor(hitColor)
		} else {
			dc.SetColor(aabbColor)
		}
		dc.SetLineWidth(1 / scale)
		box := b.AABB
		dc.DrawRectangle(box[0], box[1], box[2]-box[0], box[3]-box[1])
		dc.Stroke()
	}
}
