package dependency

import (
	"fmt"
	"testing"

	"kernelctl/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGraph_DependentsAndDedup(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "worker"})
	g.AddNode(Node{ID: "endpoint", DependsOn: []NodeID{"worker", "worker"}})
	g.AddNode(Node{ID: "connector", DependsOn: []NodeID{"endpoint"}})

	assert.Equal(t, []NodeID{"worker"}, g.Dependencies("endpoint"))
	assert.Equal(t, []NodeID{"endpoint"}, g.Dependents("worker"))
	assert.Equal(t, []NodeID{"connector", "endpoint"}, g.TransitiveDependents("worker"))
	assert.Empty(t, g.TransitiveDependents("connector"))
}

func TestGraph_RemoveNode(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a"})
	g.AddNode(Node{ID: "b", DependsOn: []NodeID{"a"}})

	g.RemoveNode("b")
	assert.Nil(t, g.Get("b"))
	assert.Empty(t, g.Dependents("a"))
	assert.Equal(t, 1, g.Len())

	g.RemoveNode("missing")
	assert.Equal(t, 1, g.Len())
}

func TestGraph_ReplaceNode(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a"})
	g.AddNode(Node{ID: "b"})
	g.AddNode(Node{ID: "c", DependsOn: []NodeID{"a"}})
	g.AddNode(Node{ID: "c", DependsOn: []NodeID{"b"}})

	assert.Empty(t, g.Dependents("a"))
	assert.Equal(t, []NodeID{"c"}, g.Dependents("b"))
}

func TestGraph_Levels(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "buffer-pool"})
	g.AddNode(Node{ID: "worker"})
	g.AddNode(Node{ID: "endpoint", DependsOn: []NodeID{"worker", "buffer-pool"}})
	g.AddNode(Node{ID: "connector", DependsOn: []NodeID{"endpoint", "external"}})

	levels, err := g.Levels([]NodeID{"connector", "endpoint", "worker", "buffer-pool"})
	require.NoError(t, err)
	assert.Equal(t, [][]NodeID{{"buffer-pool", "worker"}, {"endpoint"}, {"connector"}}, levels)

	// Edges leaving the subset do not hold nodes back.
	levels, err = g.Levels([]NodeID{"connector"})
	require.NoError(t, err)
	assert.Equal(t, [][]NodeID{{"connector"}}, levels)
}

func TestGraph_LevelsCycle(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", FriendlyName: "org.test.a", DependsOn: []NodeID{"b"}})
	g.AddNode(Node{ID: "b", FriendlyName: "org.test.b", DependsOn: []NodeID{"c"}})
	g.AddNode(Node{ID: "c", FriendlyName: "org.test.c", DependsOn: []NodeID{"a"}})
	g.AddNode(Node{ID: "d", DependsOn: []NodeID{"a"}})
	g.AddNode(Node{ID: "e"})

	_, err := g.Levels([]NodeID{"a", "b", "c", "d", "e"})
	require.ErrorIs(t, err, api.ErrDependencyCycle)

	var cycleErr *api.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"org.test.a", "org.test.b", "org.test.c", "org.test.a"}, cycleErr.Names)
}

func TestGraph_LevelsRespectEdges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "nodes")
		g := New()
		ids := make([]NodeID, n)
		for i := 0; i < n; i++ {
			ids[i] = NodeID(fmt.Sprintf("n%02d", i))
			var deps []NodeID
			// Only depend on lower indexes so the graph stays acyclic.
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("edge-%d-%d", i, j)) {
					deps = append(deps, ids[j])
				}
			}
			g.AddNode(Node{ID: ids[i], DependsOn: deps})
		}

		levels, err := g.Levels(ids)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		levelOf := make(map[NodeID]int)
		count := 0
		for l, level := range levels {
			for _, id := range level {
				levelOf[id] = l
				count++
			}
		}
		if count != n {
			t.Fatalf("expected %d nodes in levels, got %d", n, count)
		}
		for _, id := range ids {
			for _, dep := range g.Dependencies(id) {
				if levelOf[dep] >= levelOf[id] {
					t.Fatalf("%s at level %d does not come after %s at level %d", id, levelOf[id], dep, levelOf[dep])
				}
			}
		}
	})
}
