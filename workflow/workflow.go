package workflow

// Definition is a typed workflow definition with a handler function.
// T is the payload type; it must be JSON-serializable for Run.Input storage.
type Definition[T any] struct {
	// Name is the unique identifier for this workflow type.
	Name string

	// Version distinguishes incompatible handler revisions. Runs resume on
	// the version they were started with. Zero means 1.
	Version int

	// Handler executes the workflow logic. It is re-invoked from the top on
	// every replay and must reach side effects only through steps.
	Handler func(wf *Workflow, input T) error
}

// NewWorkflow creates a typed workflow definition at version 1.
func NewWorkflow[T any](name string, handler func(wf *Workflow, input T) error) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
	}
}

// WithVersion returns a copy of the definition stamped with version v.
func (d *Definition[T]) WithVersion(v int) *Definition[T] {
	cp := *d
	cp.Version = v
	return &cp
}
