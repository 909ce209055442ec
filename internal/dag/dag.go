// Package dag holds static task graphs and runs them in-process, one task
// at a time, in dependency order.
package dag

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"starflow/internal/operators"
	"starflow/pkg/errors"
)

// Defaults apply to every task of a DAG.
type Defaults struct {
	Owner      string
	Retries    int
	RetryDelay time.Duration
}

// DefaultArgs are the defaults the pipelines ship with.
func DefaultArgs() Defaults {
	return Defaults{Owner: "starflow", Retries: 1, RetryDelay: 5 * time.Minute}
}

// DAG is a set of tasks and the ordering edges between them.
type DAG struct {
	ID          string
	Description string
	Defaults    Defaults

	tasks      []operators.Operator
	index      map[string]int
	downstream map[string][]string
	upstream   map[string][]string
	problems   []error
}

// New creates an empty DAG.
func New(id, description string, defaults Defaults) *DAG {
	return &DAG{
		ID:          id,
		Description: description,
		Defaults:    defaults,
		index:       make(map[string]int),
		downstream:  make(map[string][]string),
		upstream:    make(map[string][]string),
	}
}

// Add registers tasks. A second task with an existing id is recorded as a
// problem and reported by Validate.
func (d *DAG) Add(ops ...operators.Operator) *DAG {
	for _, op := range ops {
		d.add(op)
	}
	return d
}

func (d *DAG) add(op operators.Operator) {
	id := op.ID()
	if i, ok := d.index[id]; ok {
		if d.tasks[i] != op {
			d.problems = append(d.problems, errors.New(errors.ErrCodeDAGDuplicate,
				fmt.Sprintf("Task id '%s' is used twice in DAG %s", id, d.ID)).WithContext("task", id))
		}
		return
	}
	d.index[id] = len(d.tasks)
	d.tasks = append(d.tasks, op)
}

// Edge orders task to after task from, by id. Ids need not be registered
// yet; Validate reports any that never are.
func (d *DAG) Edge(from, to string) *DAG {
	for _, existing := range d.downstream[from] {
		if existing == to {
			return d
		}
	}
	d.downstream[from] = append(d.downstream[from], to)
	d.upstream[to] = append(d.upstream[to], from)
	return d
}

// SetDownstream runs every op in next after op, adding them as needed.
func (d *DAG) SetDownstream(op operators.Operator, next ...operators.Operator) *DAG {
	d.add(op)
	for _, n := range next {
		d.add(n)
		d.Edge(op.ID(), n.ID())
	}
	return d
}

// Chain links ops one after another: a >> b >> c.
func (d *DAG) Chain(ops ...operators.Operator) *DAG {
	layers := make([][]operators.Operator, len(ops))
	for i, op := range ops {
		layers[i] = []operators.Operator{op}
	}
	return d.Layers(layers...)
}

// Layers links every task of a layer to every task of the next one, so
// tasks inside a layer have no order between them.
func (d *DAG) Layers(layers ...[]operators.Operator) *DAG {
	for i, layer := range layers {
		for _, op := range layer {
			d.add(op)
		}
		if i == 0 {
			continue
		}
		for _, from := range layers[i-1] {
			for _, to := range layer {
				d.Edge(from.ID(), to.ID())
			}
		}
	}
	return d
}

// Task returns the task with the given id.
func (d *DAG) Task(id string) (operators.Operator, bool) {
	i, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return d.tasks[i], true
}

// TaskIDs lists task ids in insertion order.
func (d *DAG) TaskIDs() []string {
	ids := make([]string, len(d.tasks))
	for i, t := range d.tasks {
		ids[i] = t.ID()
	}
	return ids
}

// Upstream returns the ids task id waits on.
func (d *DAG) Upstream(id string) []string {
	return append([]string(nil), d.upstream[id]...)
}

// Downstream returns the ids that wait on task id.
func (d *DAG) Downstream(id string) []string {
	return append([]string(nil), d.downstream[id]...)
}

// Validate reports duplicate ids, edges to unknown tasks and cycles.
func (d *DAG) Validate() error {
	if len(d.problems) > 0 {
		return d.problems[0]
	}

	var unknown []string
	seen := map[string]bool{}
	check := func(id string) {
		if _, ok := d.index[id]; !ok && !seen[id] {
			seen[id] = true
			unknown = append(unknown, id)
		}
	}
	for from, tos := range d.downstream {
		check(from)
		for _, to := range tos {
			check(to)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.New(errors.ErrCodeDAGUnknownTask,
			fmt.Sprintf("DAG %s references unknown tasks: %s", d.ID, strings.Join(unknown, ", "))).
			WithDetails(unknown...)
	}

	_, err := d.Order()
	return err
}

// Order returns the task ids in a topological order. Ties are broken by
// insertion order so the result is stable between runs.
func (d *DAG) Order() ([]string, error) {
	inDegree := make(map[string]int, len(d.tasks))
	for _, t := range d.tasks {
		inDegree[t.ID()] = 0
	}
	for _, t := range d.tasks {
		for _, to := range d.downstream[t.ID()] {
			if _, ok := inDegree[to]; ok {
				inDegree[to]++
			}
		}
	}

	// ready holds insertion indexes, kept sorted.
	var ready []int
	for i, t := range d.tasks {
		if inDegree[t.ID()] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(d.tasks))
	for len(ready) > 0 {
		current := d.tasks[ready[0]].ID()
		ready = ready[1:]
		order = append(order, current)

		for _, to := range d.downstream[current] {
			if _, ok := inDegree[to]; !ok {
				continue
			}
			inDegree[to]--
			if inDegree[to] == 0 {
				ready = append(ready, d.index[to])
				sort.Ints(ready)
			}
		}
	}

	if len(order) != len(d.tasks) {
		var stuck []string
		for _, t := range d.tasks {
			if inDegree[t.ID()] > 0 {
				stuck = append(stuck, t.ID())
			}
		}
		return nil, errors.New(errors.ErrCodeDAGCycle,
			fmt.Sprintf("DAG %s has a cycle", d.ID)).
			WithDetails(stuck...).
			WithSuggestions("Remove one of the edges between the listed tasks")
	}
	return order, nil
}
