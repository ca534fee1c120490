// Package tasks implements the task execution contract (spec §6.1): a
// fixed table of named functions, each `(params map[string]string) →
// (json string, err error)`. The core calls through this table only; it
// supplies nothing else to a task, so every task here is written to be
// re-entrant and to read everything it needs from params.
package tasks

import "fmt"

// Func is the shape every task must satisfy.
type Func func(params map[string]string) (string, error)

// Class is a task's classification for queue/timeout routing (§6.1).
type Class string

const (
	CPU Class = "cpu"
	IO  Class = "io"
)

// classification is the authoritative CPU/IO table.
var classification = map[string]Class{
	"isprime":    CPU,
	"factor":     CPU,
	"pi":         CPU,
	"matrixmul":  CPU,
	"mandelbrot": CPU,
	"fibonacci":  CPU,
	"reverse":    CPU,
	"toupper":    CPU,
	"random":     CPU,

	"sortfile":   IO,
	"wordcount":  IO,
	"grep":       IO,
	"compress":   IO,
	"hashfile":   IO,
	"createfile": IO,
	"deletefile": IO,
	"timestamp":  IO,
}

// table is the fixed task → function mapping. Populated by init() in
// each task-family file so this file stays the single source of truth
// for classification independent of implementation location.
var table = map[string]Func{}

func register(name string, fn Func) {
	table[name] = fn
}

// Classify returns the task's class and whether it is known at all. An
// unknown name is accepted at submission time per §6.1; only Lookup at
// execution time fails for it.
func Classify(task string) (Class, bool) {
	c, ok := classification[task]
	return c, ok
}

// Lookup returns the task function for name, or an error matching the
// exact message format required by §6.1 ("Unknown task '<name>'") when
// the name isn't in the table.
func Lookup(name string) (Func, error) {
	fn, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("Unknown task '%s'", name)
	}
	return fn, nil
}

// Names returns every registered task name, for diagnostics and the help
// route.
func Names() []string {
	out := make([]string, 0, len(table))
	for n := range table {
		out = append(out, n)
	}
	return out
}
