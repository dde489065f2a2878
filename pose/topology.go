package pose

import (
	"fmt"
)

// Part identifies one of the anatomical landmarks the model is trained on
type Part int

/* PoseNet keypoints
0: Nose
1: Left Eye
2: Right Eye
3: Left Ear
4: Right Ear
5: Left Shoulder
6: Right Shoulder
7: Left Elbow
8: Right Elbow
9: Left Wrist
10: Right Wrist
11: Left Hip
12: Right Hip
13: Left Knee
14: Right Knee
15: Left Ankle
16: Right Ankle
*/
const (
	Nose Part = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

const (
	// NumParts is the number of keypoints in a skeleton
	NumParts = 17
	// NumEdges is the number of connections in the skeleton tree
	NumEdges = 16
)

var partNames = [NumParts]string{
	"nose", "leftEye", "rightEye", "leftEar", "rightEar",
	"leftShoulder", "rightShoulder", "leftElbow", "rightElbow",
	"leftWrist", "rightWrist", "leftHip", "rightHip",
	"leftKnee", "rightKnee", "leftAnkle", "rightAnkle",
}

// String returns the PoseNet name of the part
func (p Part) String() string {
	if p < 0 || int(p) >= NumParts {
		return fmt.Sprintf("part(%d)", int(p))
	}
	return partNames[p]
}

// Parts returns all parts in enumeration order
func Parts() []Part {
	parts := make([]Part, NumParts)
	for i := range parts {
		parts[i] = Part(i)
	}
	return parts
}

// Edge is a directed skeleton connection.  The index of an edge in Edges()
// is the channel used to read its displacement vector.
type Edge struct {
	Parent Part
	Child  Part
}

var poseChain = [NumEdges]Edge{
	{Nose, LeftEye},
	{LeftEye, LeftEar},
	{Nose, RightEye},
	{RightEye, RightEar},
	{Nose, LeftShoulder},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{LeftShoulder, LeftHip},
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{Nose, RightShoulder},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{RightShoulder, RightHip},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
}

// Edges returns the PoseNet skeleton edges
func Edges() []Edge {
	edges := make([]Edge, NumEdges)
	copy(edges, poseChain[:])
	return edges
}

// Step is one move of a traversal over the skeleton tree
type Step struct {
	// Edge is the index of the edge crossed
	Edge int
	// From is the part already resolved
	From Part
	// To is the part reached by the step
	To Part
	// Forward is true when moving from the edge parent to its child
	Forward bool
}

// Topology is a skeleton tree with precomputed adjacency
type Topology struct {
	numParts int
	edges    []Edge
	// adjacency holds for each part the incident edge indices, forward
	// edges first then backward edges, each in edge table order
	adjacency [][]int
}

var coco = mustTopology(NumParts, poseChain[:])

// COCO returns the fixed 17 part PoseNet topology
func COCO() *Topology {
	return coco
}

// NewTopology builds a topology over numParts parts and validates that the
// edges form a tree spanning all of them
func NewTopology(numParts int, edges []Edge) (*Topology, error) {

	if numParts <= 0 {
		return nil, fmt.Errorf("topology needs at least one part, got %d", numParts)
	}

	if len(edges) != numParts-1 {
		return nil, fmt.Errorf("a tree of %d parts needs %d edges, got %d",
			numParts, numParts-1, len(edges))
	}

	t := &Topology{
		numParts:  numParts,
		edges:     make([]Edge, len(edges)),
		adjacency: make([][]int, numParts),
	}
	copy(t.edges, edges)

	for i, e := range edges {
		if !t.valid(e.Parent) || !t.valid(e.Child) || e.Parent == e.Child {
			return nil, fmt.Errorf("edge %d (%d, %d) is invalid", i, e.Parent, e.Child)
		}
		t.adjacency[e.Parent] = append(t.adjacency[e.Parent], i)
	}

	for i, e := range edges {
		t.adjacency[e.Child] = append(t.adjacency[e.Child], i)
	}

	// n-1 edges reaching all n parts from any root means no cycles
	if steps := t.Traversal(0); len(steps) != numParts-1 {
		return nil, fmt.Errorf("edges do not connect all %d parts", numParts)
	}

	return t, nil
}

func mustTopology(numParts int, edges []Edge) *Topology {
	t, err := NewTopology(numParts, edges)
	if err != nil {
		panic(err)
	}
	return t
}

// NumParts returns the number of parts in the topology
func (t *Topology) NumParts() int {
	return t.numParts
}

// Edges returns the topology edges
func (t *Topology) Edges() []Edge {
	edges := make([]Edge, len(t.edges))
	copy(edges, t.edges)
	return edges
}

// Traversal returns the breadth first walk of the tree starting at root.
// Neighbours are expanded in edge table order with edges leaving the part
// as parent (forward) before edges arriving at it as child (backward).
func (t *Topology) Traversal(root Part) []Step {

	if !t.valid(root) {
		return nil
	}

	visited := make([]bool, t.numParts)
	visited[root] = true

	queue := []Part{root}
	steps := make([]Step, 0, t.numParts-1)

	for len(queue) > 0 {
		from := queue[0]
		queue = queue[1:]

		for _, ei := range t.adjacency[from] {
			e := t.edges[ei]

			step := Step{Edge: ei, From: from, To: e.Child, Forward: true}

			if e.Child == from {
				step = Step{Edge: ei, From: from, To: e.Parent, Forward: false}
			}

			if visited[step.To] {
				continue
			}

			visited[step.To] = true
			steps = append(steps, step)
			queue = append(queue, step.To)
		}
	}

	return steps
}

func (t *Topology) valid(p Part) bool {
	return p >= 0 && int(p) < t.numParts
}
