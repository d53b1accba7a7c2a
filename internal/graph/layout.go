package graph

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/layout"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ppiankov/txlens/internal/model"
)

type nodeKind int

const (
	kindTx nodeKind = iota
	kindInput
	kindOutput
)

// txNodeID is the ID of the central transaction node
const txNodeID int64 = 0

type node struct {
	id    int64
	kind  nodeKind
	label string
}

// flowGraph is the directed inputs -> TX -> outputs graph. Repeated addresses
// on one side collapse into a single node.
type flowGraph struct {
	g     *simple.DirectedGraph
	nodes []node // ID order
}

func buildFlowGraph(flow model.Flow, labels Labels) *flowGraph {
	fg := &flowGraph{g: simple.NewDirectedGraph()}

	tx := simple.Node(txNodeID)
	fg.g.AddNode(tx)
	fg.nodes = append(fg.nodes, node{id: txNodeID, kind: kindTx, label: TxLabel})

	nextID := txNodeID + 1
	inputs := make(map[string]int64)
	for _, addr := range flow.Inputs {
		if _, ok := inputs[addr]; ok {
			continue
		}
		inputs[addr] = nextID
		fg.nodes = append(fg.nodes, node{id: nextID, kind: kindInput, label: labels.Inputs[addr]})
		fg.g.SetEdge(fg.g.NewEdge(simple.Node(nextID), tx))
		nextID++
	}

	outputs := make(map[string]int64)
	for _, addr := range flow.Outputs {
		if _, ok := outputs[addr]; ok {
			continue
		}
		outputs[addr] = nextID
		fg.nodes = append(fg.nodes, node{id: nextID, kind: kindOutput, label: labels.Outputs[addr]})
		fg.g.SetEdge(fg.g.NewEdge(tx, simple.Node(nextID)))
		nextID++
	}

	return fg
}

// orderedGraph yields nodes and neighbours in ID order. The simple graphs
// iterate maps, which would make the seeded layout differ between runs.
type orderedGraph struct {
	*simple.DirectedGraph
}

func (g orderedGraph) Nodes() graph.Nodes {
	return sortByID(g.DirectedGraph.Nodes())
}

func (g orderedGraph) From(id int64) graph.Nodes {
	return sortByID(g.DirectedGraph.From(id))
}

func sortByID(it graph.Nodes) graph.Nodes {
	nodes := graph.NodesOf(it)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	return iterator.NewOrderedNodes(nodes)
}

// Eades parameters
const (
	repulsion = 1.0
	rate      = 0.05
	theta     = 0.2
)

// layoutNodes runs a seeded Eades force-directed layout and returns positions
// normalized to the unit square. The same topology, seed and update count
// always give the same positions.
func layoutNodes(fg *flowGraph, seed uint64, updates int) map[int64]r2.Vec {
	eades := layout.EadesR2{
		Updates:   updates,
		Repulsion: repulsion,
		Rate:      rate,
		Theta:     theta,
		Src:       rand.NewPCG(seed, seed),
	}
	optimizer := layout.NewOptimizerR2(orderedGraph{fg.g}, eades.Update)
	for optimizer.Update() {
	}

	coords := make(map[int64]r2.Vec, len(fg.nodes))
	for _, n := range fg.nodes {
		coords[n.id] = optimizer.Coord2(n.id)
	}
	return normalize(coords)
}

// normalize scales coordinates into [0,1] on each axis. An axis with no
// spread is centered.
func normalize(coords map[int64]r2.Vec) map[int64]r2.Vec {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range coords {
		minX, maxX = math.Min(minX, v.X), math.Max(maxX, v.X)
		minY, maxY = math.Min(minY, v.Y), math.Max(maxY, v.Y)
	}

	scale := func(v, lo, hi float64) float64 {
		if hi-lo < 1e-9 || math.IsNaN(v) {
			return 0.5
		}
		return (v - lo) / (hi - lo)
	}

	out := make(map[int64]r2.Vec, len(coords))
	for id, v := range coords {
		out[id] = r2.Vec{X: scale(v.X, minX, maxX), Y: scale(v.Y, minY, maxY)}
	}
	return out
}
