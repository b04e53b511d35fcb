package workflow_test

import (
	"testing"

	"github.com/zeni/ledgerflow/workflow"
)

func TestRegistry_Versions(t *testing.T) {
	reg := workflow.NewRegistry()
	noop := func(*workflow.Workflow, orderInput) error { return nil }

	workflow.RegisterDefinition(reg, workflow.NewWorkflow("order", noop))
	workflow.RegisterDefinition(reg, workflow.NewWorkflow("order", noop).WithVersion(3))
	workflow.RegisterDefinition(reg, workflow.NewWorkflow("refund", noop))

	if v := reg.LatestVersion("order"); v != 3 {
		t.Errorf("LatestVersion(order) = %d, want 3", v)
	}
	if v := reg.LatestVersion("missing"); v != 0 {
		t.Errorf("LatestVersion(missing) = %d, want 0", v)
	}
	if _, ok := reg.GetVersion("order", 1); !ok {
		t.Error("version 1 not found")
	}
	if _, ok := reg.GetVersion("order", 2); ok {
		t.Error("unregistered version 2 found")
	}
	if _, ok := reg.Get("order"); !ok {
		t.Error("latest order not found")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "order" || names[1] != "refund" {
		t.Errorf("Names() = %v, want [order refund]", names)
	}
}
