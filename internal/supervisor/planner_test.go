package supervisor

import (
	"strings"
	"testing"
)

func TestKeywordPlanner_ResearchAndAnalyze(t *testing.T) {
	agents := testAgents()
	tasks, err := KeywordPlanner{}.Plan("research and analyze the topic", agents)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(tasks))
	}

	wantAgents := []string{"researcher", "analyzer", "reviewer"}
	wantPriorities := []TaskPriority{PriorityHigh, PriorityMedium, PriorityLow}
	for i, task := range tasks {
		if task.AgentID != wantAgents[i] {
			t.Errorf("task %d agent = %s, want %s", i, task.AgentID, wantAgents[i])
		}
		if task.Priority != wantPriorities[i] {
			t.Errorf("task %d priority = %s, want %s", i, task.Priority, wantPriorities[i])
		}
		if task.Status != TaskPending {
			t.Errorf("task %d status = %s, want pending", i, task.Status)
		}
	}
	// Tasks form a chain: each depends on its predecessor.
	if len(tasks[0].DependsOn) != 0 {
		t.Errorf("first task has dependencies: %v", tasks[0].DependsOn)
	}
	for i := 1; i < len(tasks); i++ {
		if len(tasks[i].DependsOn) != 1 || tasks[i].DependsOn[0] != tasks[i-1].TaskID {
			t.Errorf("task %d deps = %v, want [%s]", i, tasks[i].DependsOn, tasks[i-1].TaskID)
		}
	}
}

func TestKeywordPlanner_ReviewerAlwaysLast(t *testing.T) {
	tasks, err := KeywordPlanner{}.Plan("write the release notes", testAgents())
	if err != nil {
		t.Fatal(err)
	}
	if last := tasks[len(tasks)-1]; last.AgentID != "reviewer" {
		t.Errorf("last task agent = %s, want reviewer", last.AgentID)
	}
	if !strings.HasPrefix(tasks[len(tasks)-1].Description, "review:") {
		t.Errorf("review description = %q", tasks[len(tasks)-1].Description)
	}
}

func TestKeywordPlanner_NoKeywordFallsBackToBestAgent(t *testing.T) {
	agents := []*Agent{
		{ID: "a-low", Role: RoleExecutor, Priority: 5},
		{ID: "a-high", Role: RoleResearcher, Priority: 1},
		{ID: "rev", Role: RoleReviewer, Priority: 0},
	}
	tasks, err := KeywordPlanner{}.Plan("make it go faster", agents)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want fallback + review", len(tasks))
	}
	// The reviewer never takes the fallback slot, even at best priority.
	if tasks[0].AgentID != "a-high" {
		t.Errorf("fallback agent = %s, want a-high", tasks[0].AgentID)
	}
	if tasks[1].AgentID != "rev" {
		t.Errorf("final agent = %s, want rev", tasks[1].AgentID)
	}
}

func TestKeywordPlanner_EmptyObjective(t *testing.T) {
	if _, err := (KeywordPlanner{}).Plan("   ", testAgents()); err == nil {
		t.Fatal("expected error for empty objective")
	}
}

func TestKeywordPlanner_NoAgents(t *testing.T) {
	if _, err := (KeywordPlanner{}).Plan("do something unmatched", nil); err == nil {
		t.Fatal("expected error with no agents")
	}
}

func TestKeywordPlanner_MissingRoleSkipped(t *testing.T) {
	agents := []*Agent{{ID: "researcher", Role: RoleResearcher}}
	tasks, err := KeywordPlanner{}.Plan("research and analyze the topic", agents)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].AgentID != "researcher" {
		t.Fatalf("tasks = %+v, want single researcher task", tasks)
	}
}
