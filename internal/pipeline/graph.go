// Package pipeline runs a static graph of generation tasks in dependency
// waves: parallel inside a wave, with a full barrier between waves.
package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// DefaultDependencyFormat renders one dependency into the task context.
// {key} and {text} are replaced by the dependency key and its completed output.
const DefaultDependencyFormat = "\n\nThe completed {key} output is:\n{text}\n"

// ProduceFunc generates a task's output from its assembled context.
type ProduceFunc func(ctx context.Context, input string) (string, error)

// Task is one node of a Graph.
type Task struct {
	Key       string
	DependsOn []string
	// Instructions are the task's own fixed inputs. They open the assembled context.
	Instructions string
	// DependencyFormat renders each dependency; empty means DefaultDependencyFormat.
	DependencyFormat string
	Produce          ProduceFunc
}

// Graph is an immutable, validated set of tasks with precomputed waves.
type Graph struct {
	tasks map[string]Task
	order []string
	waves [][]string
	wave  map[string]int
}

// NewGraph validates tasks and partitions them into waves. Task order is kept
// inside each wave.
func NewGraph(tasks ...Task) (*Graph, error) {
	g := &Graph{
		tasks: make(map[string]Task, len(tasks)),
		wave:  make(map[string]int, len(tasks)),
	}

	for _, t := range tasks {
		if t.Key == "" {
			return nil, fmt.Errorf("%w: empty task key", ErrInvalidGraph)
		}
		if t.Produce == nil {
			return nil, fmt.Errorf("%w: task %s has no produce function", ErrInvalidGraph, t.Key)
		}
		if _, ok := g.tasks[t.Key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, t.Key)
		}
		t.DependsOn = dedupe(t.DependsOn)
		g.tasks[t.Key] = t
		g.order = append(g.order, t.Key)
	}

	for _, key := range g.order {
		for _, dep := range g.tasks[key].DependsOn {
			if dep == key {
				return nil, fmt.Errorf("%w: %s depends on itself", ErrCycle, key)
			}
			if _, ok := g.tasks[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, key, dep)
			}
		}
	}

	if err := g.partition(); err != nil {
		return nil, err
	}
	return g, nil
}

// partition assigns wave n to every task whose dependencies all sit in waves < n.
func (g *Graph) partition() error {
	remaining := append([]string(nil), g.order...)
	for len(remaining) > 0 {
		var ready, blocked []string
		for _, key := range remaining {
			if g.satisfied(key) {
				ready = append(ready, key)
			} else {
				blocked = append(blocked, key)
			}
		}
		if len(ready) == 0 {
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(blocked, ", "))
		}
		n := len(g.waves)
		for _, key := range ready {
			g.wave[key] = n
		}
		g.waves = append(g.waves, ready)
		remaining = blocked
	}
	return nil
}

func (g *Graph) satisfied(key string) bool {
	for _, dep := range g.tasks[key].DependsOn {
		if _, placed := g.wave[dep]; !placed {
			return false
		}
	}
	return true
}

// Waves returns a copy of the wave layout.
func (g *Graph) Waves() [][]string {
	out := make([][]string, len(g.waves))
	for i, w := range g.waves {
		out[i] = append([]string(nil), w...)
	}
	return out
}

// WaveOf returns the wave index of key, or -1.
func (g *Graph) WaveOf(key string) int {
	if n, ok := g.wave[key]; ok {
		return n
	}
	return -1
}

// Task returns the task registered under key.
func (g *Graph) Task(key string) (Task, bool) {
	t, ok := g.tasks[key]
	return t, ok
}

// Keys returns task keys in declaration order.
func (g *Graph) Keys() []string {
	return append([]string(nil), g.order...)
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.order) }

func dedupe(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
