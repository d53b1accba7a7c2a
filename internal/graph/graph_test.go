package graph

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/txlens/internal/cache"
	"github.com/ppiankov/txlens/internal/model"
)

const testTxID = "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16"

// reuseFlow: two inputs, one of them paid back as change, one recipient
var reuseFlow = model.Flow{
	Inputs:       []string{"A", "B"},
	Outputs:      []string{"C", "A"},
	OutputValues: []int64{1_000_000, 2_345_678},
}

func TestAssignLabels(t *testing.T) {
	labels := AssignLabels(reuseFlow)

	assert.Equal(t, map[string]string{"A": WalletLabel, "B": "Wallet 2"}, labels.Inputs)
	assert.Equal(t, map[string]string{"C": "Recipient 3", "A": ChangeLabel}, labels.Outputs)
}

func TestAssignLabels_RepeatedAddresses(t *testing.T) {
	flow := model.Flow{
		Inputs:  []string{"A", "B", "A", model.UnknownAddress},
		Outputs: []string{"D", "D", "B", model.UnknownAddress},
	}
	labels := AssignLabels(flow)

	assert.Equal(t, map[string]string{
		"A":                  WalletLabel,
		"B":                  "Wallet 2",
		model.UnknownAddress: "Wallet 3",
	}, labels.Inputs)
	assert.Equal(t, map[string]string{
		"D":                  "Recipient 4",
		"B":                  ChangeLabel,
		model.UnknownAddress: ChangeLabel,
	}, labels.Outputs)
}

func TestAssignLabels_IsAValue(t *testing.T) {
	a := AssignLabels(reuseFlow)
	b := AssignLabels(reuseFlow)
	assert.Equal(t, a, b)

	// Mutating one mapping leaves a fresh assignment untouched
	a.Inputs["A"] = "tampered"
	assert.Equal(t, WalletLabel, AssignLabels(reuseFlow).Inputs["A"])
}

func TestLabels_ByAddress(t *testing.T) {
	byAddr := AssignLabels(reuseFlow).ByAddress()
	assert.Equal(t, WalletLabel, byAddr["A"], "input label wins for change addresses")
	assert.Equal(t, "Recipient 3", byAddr["C"])
	assert.Len(t, byAddr, 3)
}

func TestHighlight(t *testing.T) {
	labels := AssignLabels(reuseFlow)

	tests := []struct {
		rule model.RuleID
		want []string
	}{
		{model.RuleMultipleInputs, []string{WalletLabel, "Wallet 2"}},
		{model.RuleAddressReuse, []string{WalletLabel, ChangeLabel}},
		{model.RuleRoundOutputs, []string{"Recipient 3"}},
		{model.RuleChangeSameAddress, []string{ChangeLabel}},
		{model.RuleFreshChange, []string{"Recipient 3"}},
		{model.RuleEqualOutputs, []string{"Recipient 3", ChangeLabel}},
		{model.RuleID("unknown_rule"), nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.rule), func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.rule, reuseFlow, labels))
		})
	}
}

func TestBuildFlowGraph(t *testing.T) {
	flow := model.Flow{
		Inputs:  []string{"A", "A", "B"},
		Outputs: []string{"A", "C", "C"},
	}
	fg := buildFlowGraph(flow, AssignLabels(flow))

	// TX + 2 inputs + 2 outputs; A appears once per side
	require.Len(t, fg.nodes, 5)
	assert.Equal(t, TxLabel, fg.nodes[0].label)
	assert.Equal(t, []string{WalletLabel, "Wallet 2", ChangeLabel, "Recipient 3"},
		[]string{fg.nodes[1].label, fg.nodes[2].label, fg.nodes[3].label, fg.nodes[4].label})

	assert.True(t, fg.g.HasEdgeFromTo(1, txNodeID))
	assert.True(t, fg.g.HasEdgeFromTo(2, txNodeID))
	assert.True(t, fg.g.HasEdgeFromTo(txNodeID, 3))
	assert.True(t, fg.g.HasEdgeFromTo(txNodeID, 4))
	assert.False(t, fg.g.HasEdgeFromTo(txNodeID, 1))
}

func TestLayout_Deterministic(t *testing.T) {
	flow := model.Flow{
		Inputs:  []string{"A", "B", "C"},
		Outputs: []string{"D", "E", "A"},
	}
	labels := AssignLabels(flow)

	first := layoutNodes(buildFlowGraph(flow, labels), 42, 60)
	for i := 0; i < 5; i++ {
		again := layoutNodes(buildFlowGraph(flow, labels), 42, 60)
		assert.Equal(t, first, again, "run %d", i)
	}

	for id, v := range first {
		assert.GreaterOrEqual(t, v.X, 0.0, "node %d", id)
		assert.LessOrEqual(t, v.X, 1.0, "node %d", id)
		assert.GreaterOrEqual(t, v.Y, 0.0, "node %d", id)
		assert.LessOrEqual(t, v.Y, 1.0, "node %d", id)
	}
}

func TestDraw_ProducesPNG(t *testing.T) {
	r := NewRenderer(Options{Width: 320, Height: 240, Seed: 42}, nil)
	labels := AssignLabels(reuseFlow)

	var buf bytes.Buffer
	require.NoError(t, r.Draw(&buf, "Address reuse", reuseFlow, labels, []string{WalletLabel}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}

func TestDraw_SameInputSameBytes(t *testing.T) {
	r := NewRenderer(Options{Width: 320, Height: 240, Seed: 7}, nil)
	labels := AssignLabels(reuseFlow)

	var a, b bytes.Buffer
	require.NoError(t, r.Draw(&a, "t", reuseFlow, labels, nil))
	require.NoError(t, r.Draw(&b, "t", reuseFlow, labels, nil))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestDraw_EmptyFlow(t *testing.T) {
	r := NewRenderer(Options{Width: 200, Height: 200}, nil)
	var buf bytes.Buffer
	require.NoError(t, r.Draw(&buf, "", model.Flow{}, Labels{}, nil))
	_, err := png.Decode(&buf)
	assert.NoError(t, err)
}

func TestRender_WritesAndReuses(t *testing.T) {
	store, err := cache.Open(cache.Options{Dir: t.TempDir(), MaxEntries: 10})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	r := NewRenderer(Options{Width: 320, Height: 240, Seed: 42}, store)
	labels := AssignLabels(reuseFlow)
	entry := model.Entry{Rule: model.RuleAddressReuse, Label: "Address reuse", Delta: -30}
	highlight := Highlight(entry.Rule, reuseFlow, labels)

	g, err := r.Render(context.Background(), testTxID, entry, reuseFlow, labels, highlight)
	require.NoError(t, err)
	assert.False(t, g.Reused)
	assert.Equal(t, model.RuleAddressReuse, g.Rule)
	assert.Equal(t, cache.FileName(cache.ArtifactKey(testTxID, string(model.RuleAddressReuse), "320x240-s42-u60")), g.File)
	assert.Equal(t, highlight, g.Highlight)
	require.FileExists(t, g.Path)

	f, err := os.Open(g.Path)
	require.NoError(t, err)
	_, err = png.Decode(f)
	_ = f.Close()
	require.NoError(t, err)

	again, err := r.Render(context.Background(), testTxID, entry, reuseFlow, labels, highlight)
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, g.Path, again.Path)

	// No temp files left behind
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestRender_DistinctRulesDistinctFiles(t *testing.T) {
	store, err := cache.Open(cache.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	r := NewRenderer(Options{Width: 200, Height: 200}, store)
	labels := AssignLabels(reuseFlow)

	a, err := r.Render(context.Background(), testTxID, model.Entry{Rule: model.RuleMultipleInputs}, reuseFlow, labels, nil)
	require.NoError(t, err)
	b, err := r.Render(context.Background(), testTxID, model.Entry{Rule: model.RuleAddressReuse}, reuseFlow, labels, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.File, b.File)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRender_VariantChangesFile(t *testing.T) {
	store, err := cache.Open(cache.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	labels := AssignLabels(reuseFlow)
	entry := model.Entry{Rule: model.RuleAddressReuse}

	small, err := NewRenderer(Options{Width: 200, Height: 200, Seed: 1}, store).
		Render(context.Background(), testTxID, entry, reuseFlow, labels, nil)
	require.NoError(t, err)
	reseeded, err := NewRenderer(Options{Width: 200, Height: 200, Seed: 2}, store).
		Render(context.Background(), testTxID, entry, reuseFlow, labels, nil)
	require.NoError(t, err)

	assert.NotEqual(t, small.File, reseeded.File)
	assert.False(t, reseeded.Reused, "a new seed must not serve the old image")
}

func TestRenderAll_KeepsEveryGraphUnderTightBound(t *testing.T) {
	store, err := cache.Open(cache.Options{Dir: t.TempDir(), MaxEntries: 1})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	r := NewRenderer(Options{Width: 200, Height: 200}, store)
	entries := []model.Entry{
		{Rule: model.RuleMultipleInputs, Label: "Multiple inputs"},
		{Rule: model.RuleAddressReuse, Label: "Address reuse"},
		{Rule: model.RuleEqualOutputs, Label: "Equal outputs"},
	}

	graphs, err := r.RenderAll(context.Background(), testTxID, entries, reuseFlow, AssignLabels(reuseFlow))
	require.NoError(t, err)
	require.Len(t, graphs, len(entries))
	for i, g := range graphs {
		assert.Equal(t, entries[i].Rule, g.Rule)
		assert.FileExists(t, g.Path)
	}
}

func TestRender_CancelledContext(t *testing.T) {
	store, err := cache.Open(cache.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRenderer(Options{}, store)
	_, err = r.Render(ctx, testTxID, model.Entry{Rule: model.RuleEqualOutputs}, reuseFlow, AssignLabels(reuseFlow), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
