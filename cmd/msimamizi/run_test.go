package main

import "testing"

func TestSuperviseObjective_MissingObjectiveReturnsFailure(t *testing.T) {
	old := runObjective
	defer func() { runObjective = old }()
	runObjective = ""

	// Must return a code instead of exiting, so deferred teardown in callers
	// still runs.
	code, err := superviseObjective()
	if err == nil {
		t.Fatal("expected an error for a missing objective")
	}
	if code != ExitFailure {
		t.Errorf("code = %d, want %d", code, ExitFailure)
	}
}

func TestComponents_CleanupReverseOrder(t *testing.T) {
	c := &components{}
	var order []string
	c.addCleanup(func() { order = append(order, "store") })
	c.addCleanup(func() { order = append(order, "server") })

	c.Cleanup()
	if len(order) != 2 || order[0] != "server" || order[1] != "store" {
		t.Errorf("cleanup order = %v, want [server store]", order)
	}
}
