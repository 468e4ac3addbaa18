// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/railmind/pkg/models"
)

var (
	// ErrCycleDetected indicates a circular dependency was found in the task graph.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrDuplicateTask indicates two tasks in one plan share an ID.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrUnknownDependency indicates a dependency references a task that does not exist.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrEmptyTaskID indicates a task without an ID.
	ErrEmptyTaskID = errors.New("empty task id")
)

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order holds task IDs in declaration order.
	order []string
	// edges maps task ID to IDs of in-plan tasks it depends on.
	edges map[string][]string
	// satisfied holds IDs outside the plan that already succeeded in an earlier round.
	satisfied map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		satisfied: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of tasks.
// satisfied lists task IDs that are not part of the plan but already
// succeeded; dependencies on them count as met.
// Returns an error wrapping ErrEmptyTaskID, ErrDuplicateTask,
// ErrUnknownDependency or ErrCycleDetected. On error the graph is left empty.
func (g *DependencyGraph) Build(tasks []*models.Task, satisfied map[string]bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reset()
	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	for id, ok := range satisfied {
		if ok {
			g.satisfied[id] = true
		}
	}

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if task.ID == "" {
			g.reset()
			return fmt.Errorf("%w (description %q)", ErrEmptyTaskID, task.Description)
		}
		if _, dup := g.nodes[task.ID]; dup {
			g.reset()
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
		}
		g.debugLog("[graph.Build] adding task: id=%s agent=%s deps=%v", task.ID, task.Agent, task.Dependencies)
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		g.order = append(g.order, task.ID)
	}

	// Second pass: build edges from Dependencies.
	for _, task := range tasks {
		for _, depID := range task.Dependencies {
			if _, exists := g.nodes[depID]; exists {
				g.edges[task.ID] = append(g.edges[task.ID], depID)
				continue
			}
			if g.satisfied[depID] {
				continue
			}
			g.reset()
			return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, task.ID, depID)
		}
	}

	if cycle := g.findCycleLocked(); cycle != nil {
		g.reset()
		return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

func (g *DependencyGraph) reset() {
	g.nodes = make(map[string]*models.Task)
	g.edges = make(map[string][]string)
	g.satisfied = make(map[string]bool)
	g.order = nil
}

// findCycleLocked runs a three-colour depth-first search in declaration
// order and returns the first cycle found as a path ending at its start.
// Caller must hold g.mu.
func (g *DependencyGraph) findCycleLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string, path []string) []string
	visit = func(id string, path []string) []string {
		colors[id] = 1
		path = append(path, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: cut the path at the first occurrence of depID.
				for i, p := range path {
					if p == depID {
						return append(append([]string(nil), path[i:]...), depID)
					}
				}
			case 0:
				if cycle := visit(depID, path); cycle != nil {
					return cycle
				}
			}
		}

		colors[id] = 2
		return nil
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if cycle := visit(id, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// TopologicalSort returns task IDs in an order where all dependencies
// come before the tasks that depend on them. Ties keep declaration order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.findCycleLocked() != nil {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ready returns pending tasks whose every dependency has succeeded,
// in declaration order.
func (g *DependencyGraph) Ready() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for _, id := range g.order {
		task := g.nodes[id]
		if task.Status != models.TaskStatusPending && task.Status != "" {
			continue
		}

		allDepsMet := true
		for _, depID := range task.Dependencies {
			if !g.dependencyMetLocked(depID) {
				allDepsMet = false
				break
			}
		}

		if allDepsMet {
			ready = append(ready, task)
		} else {
			g.debugLog("[graph.Ready] task %s: not ready (has unmet deps)", id)
		}
	}

	g.debugLog("[graph.Ready] returning %d ready tasks", len(ready))
	return ready
}

func (g *DependencyGraph) dependencyMetLocked(depID string) bool {
	if dep, ok := g.nodes[depID]; ok {
		return dep.Status == models.TaskStatusSuccess
	}
	return g.satisfied[depID]
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of in-plan tasks that the given task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[taskID]
}

// GetDependents returns the IDs of tasks that depend on the given task,
// in declaration order.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}
