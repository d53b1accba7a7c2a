package graph

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ppiankov/txlens/internal/cache"
	"github.com/ppiankov/txlens/internal/model"
)

// Colors
const (
	backgroundColor = "#FFFFFF"
	edgeColor       = "#888888"
	nodeColor       = "#ADD8E6" // lightblue
	highlightColor  = "#FF7F50" // coral
	outlineColor    = "#333333"
	textColor       = "#000000"
)

const (
	nodeRadius = 28.0
	margin     = 60.0
	titleSpace = 30.0
	arrowLen   = 10.0
	arrowHalf  = 5.0
)

// Store is where rendered graphs are kept. Commit records every key of one
// report together, so enforcing the store bound never drops one of them.
type Store interface {
	Get(key string) (string, bool)
	Path(key string) string
	Commit(keys ...string) error
}

// Options control image size and layout
type Options struct {
	Width   int
	Height  int
	Seed    uint64
	Updates int
}

// Renderer draws one graph per triggered rule into an artifact store
type Renderer struct {
	opts    Options
	store   Store
	variant string
}

// NewRenderer creates a renderer writing into store
func NewRenderer(opts Options, store Store) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 600
	}
	if opts.Updates <= 0 {
		opts.Updates = 60
	}
	return &Renderer{
		opts:    opts,
		store:   store,
		variant: fmt.Sprintf("%dx%d-s%d-u%d", opts.Width, opts.Height, opts.Seed, opts.Updates),
	}
}

// Render produces the graph for one breakdown entry. The artifact is keyed by
// transaction, rule and render options, so an existing image is returned
// without redrawing.
func (r *Renderer) Render(ctx context.Context, txid string, entry model.Entry, flow model.Flow, labels Labels, highlight []string) (model.Graph, error) {
	g, key, err := r.render(ctx, txid, entry, flow, labels, highlight)
	if err != nil {
		return model.Graph{}, err
	}
	if err := r.store.Commit(key); err != nil {
		return model.Graph{}, fmt.Errorf("commit %s: %w", entry.Rule, err)
	}
	return g, nil
}

// RenderAll produces one graph per entry, highlighting each rule's nodes,
// and commits them to the store in a single step.
func (r *Renderer) RenderAll(ctx context.Context, txid string, entries []model.Entry, flow model.Flow, labels Labels) ([]model.Graph, error) {
	graphs := make([]model.Graph, 0, len(entries))
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		g, key, err := r.render(ctx, txid, entry, flow, labels, Highlight(entry.Rule, flow, labels))
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
		keys = append(keys, key)
	}

	if len(keys) > 0 {
		if err := r.store.Commit(keys...); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
	}
	return graphs, nil
}

// render writes the image for entry unless the store already has it, and
// returns the key still to be committed.
func (r *Renderer) render(ctx context.Context, txid string, entry model.Entry, flow model.Flow, labels Labels, highlight []string) (model.Graph, string, error) {
	key := cache.ArtifactKey(txid, string(entry.Rule), r.variant)
	out := model.Graph{
		Rule:      entry.Rule,
		Label:     entry.Label,
		File:      cache.FileName(key),
		Highlight: highlight,
	}

	if path, ok := r.store.Get(key); ok {
		out.Path = path
		out.Reused = true
		return out, key, nil
	}

	if err := ctx.Err(); err != nil {
		return model.Graph{}, "", err
	}

	path := r.store.Path(key)
	if err := r.writeFile(path, entry.Label, flow, labels, highlight); err != nil {
		return model.Graph{}, "", fmt.Errorf("render %s: %w", entry.Rule, err)
	}

	out.Path = path
	return out, key, nil
}

// writeFile renders to a temporary file next to path and renames it into
// place, so readers never see a partial image.
func (r *Renderer) writeFile(path, title string, flow model.Flow, labels Labels, highlight []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := r.Draw(tmp, title, flow, labels, highlight); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Draw encodes the flow diagram as PNG to w
func (r *Renderer) Draw(w io.Writer, title string, flow model.Flow, labels Labels, highlight []string) error {
	fg := buildFlowGraph(flow, labels)
	coords := layoutNodes(fg, r.opts.Seed, r.opts.Updates)

	highlighted := make(map[string]bool, len(highlight))
	for _, label := range highlight {
		highlighted[label] = true
	}

	width, height := float64(r.opts.Width), float64(r.opts.Height)
	place := func(id int64) r2.Vec {
		v := coords[id]
		return r2.Vec{
			X: margin + v.X*(width-2*margin),
			Y: margin + titleSpace + v.Y*(height-2*margin-titleSpace),
		}
	}

	dc := gg.NewContext(r.opts.Width, r.opts.Height)
	dc.SetHexColor(backgroundColor)
	dc.Clear()

	if title != "" {
		dc.SetHexColor(textColor)
		dc.DrawStringAnchored(title, width/2, margin/2, 0.5, 0.5)
	}

	// Edges under nodes
	dc.SetHexColor(edgeColor)
	dc.SetLineWidth(1.5)
	for _, n := range fg.nodes {
		to := sortByID(fg.g.From(n.id))
		for to.Next() {
			drawArrow(dc, place(n.id), place(to.Node().ID()))
		}
	}

	for _, n := range fg.nodes {
		p := place(n.id)
		fill := nodeColor
		if highlighted[n.label] {
			fill = highlightColor
		}
		dc.DrawCircle(p.X, p.Y, nodeRadius)
		dc.SetHexColor(fill)
		dc.FillPreserve()
		dc.SetHexColor(outlineColor)
		dc.SetLineWidth(1)
		dc.Stroke()

		dc.SetHexColor(textColor)
		dc.DrawStringAnchored(n.label, p.X, p.Y, 0.5, 0.5)
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// drawArrow draws a line between node centers with a head touching the
// target's rim.
func drawArrow(dc *gg.Context, from, to r2.Vec) {
	d := r2.Sub(to, from)
	dist := math.Hypot(d.X, d.Y)
	if dist <= 2*nodeRadius {
		return
	}
	u := r2.Scale(1/dist, d)
	perp := r2.Vec{X: -u.Y, Y: u.X}

	start := r2.Add(from, r2.Scale(nodeRadius, u))
	tip := r2.Sub(to, r2.Scale(nodeRadius, u))
	base := r2.Sub(tip, r2.Scale(arrowLen, u))

	dc.DrawLine(start.X, start.Y, base.X, base.Y)
	dc.Stroke()

	left := r2.Add(base, r2.Scale(arrowHalf, perp))
	right := r2.Sub(base, r2.Scale(arrowHalf, perp))
	dc.MoveTo(tip.X, tip.Y)
	dc.LineTo(left.X, left.Y)
	dc.LineTo(right.X, right.Y)
	dc.ClosePath()
	dc.Fill()
}
