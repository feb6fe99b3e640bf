package engine

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/loomworks/loom/graph"
)

// buildChain makes a linear text chain of the given length ending in a
// finish node, recording execution order.
func buildChain(length int, order *[]string) *graph.Graph {
	g := graph.New("chain")
	prev := g.Add(source("n0", order))
	g.MarkStart(prev)
	for i := 1; i < length; i++ {
		next := g.Add(relay(nodeName(i), order))
		g.MustConnect(graph.PinID{Node: prev}, graph.PinID{Node: next})
		prev = next
	}
	fin := g.Add(finishNode(order))
	g.MarkFinish(fin)
	g.MustConnect(graph.PinID{Node: prev}, graph.PinID{Node: fin})
	return g
}

func nodeName(i int) string {
	return string(rune('a' + i%26))
}

func TestProperty_LinearChainsAlwaysComplete(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("acyclic chains of any length run to completion in order", prop.ForAll(
		func(length int) bool {
			var order []string
			g := buildChain(length, &order)
			res := New(g, nil).Run(context.Background(), &graph.RunContext{})
			if res.Status != StatusCompleted {
				t.Logf("status = %v, err = %v", res.Status, res.Err)
				return false
			}
			// Every node runs exactly once: chain nodes plus finish.
			return len(order) == length+1
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

func TestProperty_SchedulingIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("two runs of the same fan-out graph execute in the same order", prop.ForAll(
		func(width int, priorities []int) bool {
			runOnce := func() []string {
				var order []string
				g := graph.New("fan")
				for i := 0; i < width; i++ {
					n := source(nodeName(i), &order)
					if i < len(priorities) {
						n.prio = 1 + priorities[i]%10000
					}
					id := g.Add(n)
					if i == 0 {
						g.MarkStart(id)
					}
				}
				res := New(g, nil).Run(context.Background(), &graph.RunContext{})
				if res.Status != StatusCompleted {
					return nil
				}
				return order
			}

			first := runOnce()
			second := runOnce()
			if first == nil || len(first) != width {
				return false
			}
			for i := range first {
				if first[i] != second[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 9999)),
	))

	properties.TestingRun(t)
}
