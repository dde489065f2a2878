package pose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCOCOTopology(t *testing.T) {

	topo := COCO()

	assert.Equal(t, NumParts, topo.NumParts())
	assert.Len(t, topo.Edges(), NumEdges)
	assert.Len(t, Parts(), NumParts)

	for i, p := range Parts() {
		assert.Equal(t, Part(i), p)
	}

	assert.Equal(t, "leftShoulder", LeftShoulder.String())
	assert.Equal(t, "rightAnkle", RightAnkle.String())
	assert.Equal(t, "part(17)", Part(17).String())
}

func TestEdgesReturnsCopy(t *testing.T) {

	edges := Edges()
	edges[0] = Edge{RightAnkle, RightKnee}

	assert.Equal(t, Edge{Nose, LeftEye}, Edges()[0])
	assert.Equal(t, Edge{Nose, LeftEye}, COCO().Edges()[0])
}

func TestTraversalVisitsEveryPartOnce(t *testing.T) {

	topo := COCO()

	for _, root := range Parts() {
		steps := topo.Traversal(root)
		require.Len(t, steps, NumParts-1, "root %s", root)

		seen := map[Part]bool{root: true}

		for _, s := range steps {
			assert.True(t, seen[s.From], "root %s: step from unresolved %s", root, s.From)
			assert.False(t, seen[s.To], "root %s: %s visited twice", root, s.To)
			seen[s.To] = true

			e := poseChain[s.Edge]

			if s.Forward {
				assert.Equal(t, Edge{s.From, s.To}, e)
			} else {
				assert.Equal(t, Edge{s.To, s.From}, e)
			}
		}

		assert.Len(t, seen, NumParts)
	}
}

func TestTraversalOrderFromNose(t *testing.T) {

	steps := COCO().Traversal(Nose)

	// all nose edges are forward, in edge table order
	want := []Step{
		{Edge: 0, From: Nose, To: LeftEye, Forward: true},
		{Edge: 2, From: Nose, To: RightEye, Forward: true},
		{Edge: 4, From: Nose, To: LeftShoulder, Forward: true},
		{Edge: 10, From: Nose, To: RightShoulder, Forward: true},
		{Edge: 1, From: LeftEye, To: LeftEar, Forward: true},
	}

	assert.Equal(t, want, steps[:len(want)])
}

func TestTraversalPrefersForwardEdges(t *testing.T) {

	// 1 is a child of 0 and parent of 2
	topo, err := NewTopology(3, []Edge{{0, 1}, {1, 2}})
	require.NoError(t, err)

	steps := topo.Traversal(1)

	assert.Equal(t, []Step{
		{Edge: 1, From: 1, To: 2, Forward: true},
		{Edge: 0, From: 1, To: 0, Forward: false},
	}, steps)
}

func TestNewTopologyRejectsInvalid(t *testing.T) {

	tests := []struct {
		name     string
		numParts int
		edges    []Edge
	}{
		{"no parts", 0, nil},
		{"too few edges", 3, []Edge{{0, 1}}},
		{"self loop", 2, []Edge{{1, 1}}},
		{"out of range", 2, []Edge{{0, 5}}},
		{"cycle", 4, []Edge{{0, 1}, {1, 2}, {2, 0}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTopology(tc.numParts, tc.edges)
			assert.Error(t, err)
		})
	}
}

func TestTraversalInvalidRoot(t *testing.T) {
	assert.Nil(t, COCO().Traversal(Part(-1)))
	assert.Nil(t, COCO().Traversal(Part(NumParts)))
}
