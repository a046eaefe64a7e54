package scheduler

import (
	"context"
	"slices"
	"sort"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Func is the body of a task.
type Func func(ctx context.Context) error

// Task is a node of the graph. Deps must finish successfully first.
type Task struct {
	Name        string
	Description string
	Deps        []string
	Run         Func
}

// Graph holds tasks by name. It is not safe for concurrent mutation; build
// it before running anything.
type Graph struct {
	tasks map[string]Task
	names []string
}

func NewGraph() *Graph {
	return &Graph{tasks: make(map[string]Task)}
}

// Add registers a task. Names must be unique and non-empty.
func (g *Graph) Add(t Task) error {
	if t.Name == "" {
		return ferrors.ValidationError("task name cannot be empty").Build()
	}
	if t.Run == nil {
		t.Run = func(context.Context) error { return nil }
	}
	if _, exists := g.tasks[t.Name]; exists {
		return ferrors.ValidationError("duplicate task name").WithContext("task", t.Name).Build()
	}
	g.tasks[t.Name] = t
	g.names = append(g.names, t.Name)
	return nil
}

// Get returns the task registered under name.
func (g *Graph) Get(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Tasks returns all tasks in registration order.
func (g *Graph) Tasks() []Task {
	out := make([]Task, 0, len(g.names))
	for _, n := range g.names {
		out = append(out, g.tasks[n])
	}
	return out
}

// Validate checks that every dependency exists and the graph is acyclic.
func (g *Graph) Validate() error {
	for _, name := range g.names {
		for _, dep := range g.tasks[name].Deps {
			if _, ok := g.tasks[dep]; !ok {
				return ferrors.ValidationError("task depends on missing task").
					WithContext("task", name).WithContext("dependency", dep).Build()
			}
		}
	}
	_, err := g.sort(g.names)
	return err
}

// Order returns the targets and their transitive dependencies in a valid
// execution order. Ties are broken by name.
func (g *Graph) Order(targets ...string) ([]string, error) {
	closure := map[string]bool{}
	var visit func(string) error
	visit = func(name string) error {
		if closure[name] {
			return nil
		}
		t, ok := g.tasks[name]
		if !ok {
			return ferrors.NotFoundError("unknown task").WithContext("task", name).Build()
		}
		closure[name] = true
		for _, dep := range t.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, target := range targets {
		if err := visit(target); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, len(closure))
	for n := range closure {
		names = append(names, n)
	}
	return g.sort(names)
}

// sort orders names with Kahn's algorithm, considering only edges between
// the given names.
func (g *Graph) sort(names []string) ([]string, error) {
	inSet := make(map[string]bool, len(names))
	for _, n := range names {
		inSet[n] = true
	}
	dependents := make(map[string][]string)
	inDegree := make(map[string]int)
	for _, n := range names {
		inDegree[n] += 0
		for _, dep := range g.tasks[n].Deps {
			if !inSet[dep] {
				continue
			}
			dependents[dep] = append(dependents[dep], n)
			inDegree[n]++
		}
	}

	var queue []string
	for _, n := range names {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(names))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		next := dependents[current]
		sort.Strings(next)
		for _, n := range next {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(names) {
		var cyclic []string
		for _, n := range names {
			if !slices.Contains(result, n) {
				cyclic = append(cyclic, n)
			}
		}
		sort.Strings(cyclic)
		return nil, ferrors.ValidationError("circular task dependency").
			WithContext("tasks", cyclic).Build()
	}
	return result, nil
}
