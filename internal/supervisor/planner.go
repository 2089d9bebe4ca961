package supervisor

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Planner converts an objective into an initial task list. The decomposition
// algorithm is pluggable; the engine only requires that returned tasks
// reference valid agent IDs and carry a priority.
type Planner interface {
	Plan(objective string, agents []*Agent) ([]*AgentTask, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(objective string, agents []*Agent) ([]*AgentTask, error)

func (f PlannerFunc) Plan(objective string, agents []*Agent) ([]*AgentTask, error) {
	return f(objective, agents)
}

// roleKeywords maps each specialist role to the objective keywords that
// activate it. Order matters: tasks are created in this sequence, chained
// by dependency so earlier specialists run first.
var roleKeywords = []struct {
	role     AgentRole
	keywords []string
}{
	{RoleResearcher, []string{"research", "investigate", "gather", "find"}},
	{RoleAnalyzer, []string{"analyz", "analys", "evaluate", "assess", "compare"}},
	{RoleWriter, []string{"write", "draft", "compose", "document", "summarize"}},
	{RoleExecutor, []string{"execute", "deploy", "perform", "implement"}},
}

// KeywordPlanner is the default Planner: a naive keyword classifier that maps
// objective terms to specialist roles. A reviewer task is always appended last
// when the roster includes one. Each task depends on the previous, so the
// router executes them in creation order.
type KeywordPlanner struct{}

// Plan implements Planner.
func (KeywordPlanner) Plan(objective string, agents []*Agent) ([]*AgentTask, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, fmt.Errorf("empty objective")
	}

	byRole := make(map[AgentRole]*Agent, len(agents))
	for _, a := range agents {
		if a.Role != "" {
			if _, seen := byRole[a.Role]; !seen {
				byRole[a.Role] = a
			}
		}
	}

	lower := strings.ToLower(objective)
	var tasks []*AgentTask

	appendTask := func(agent *Agent, desc string) {
		t := &AgentTask{
			TaskID:      uuid.NewString(),
			AgentID:     agent.ID,
			Description: desc,
			Context:     objective,
			Priority:    priorityForIndex(len(tasks)),
			Status:      TaskPending,
		}
		if n := len(tasks); n > 0 {
			t.DependsOn = []string{tasks[n-1].TaskID}
		}
		tasks = append(tasks, t)
	}

	for _, rk := range roleKeywords {
		agent, ok := byRole[rk.role]
		if !ok {
			continue
		}
		for _, kw := range rk.keywords {
			if strings.Contains(lower, kw) {
				appendTask(agent, fmt.Sprintf("%s: %s", rk.role, objective))
				break
			}
		}
	}

	// No keyword matched: hand the whole objective to the best-ranked agent.
	if len(tasks) == 0 {
		var best *Agent
		for _, a := range agents {
			if a.Role == RoleReviewer {
				continue
			}
			if best == nil || a.Priority < best.Priority {
				best = a
			}
		}
		if best == nil {
			return nil, fmt.Errorf("no agents available for objective")
		}
		appendTask(best, objective)
	}

	// The reviewer always gets the final word.
	if reviewer, ok := byRole[RoleReviewer]; ok {
		appendTask(reviewer, fmt.Sprintf("review: %s", objective))
	}

	return tasks, nil
}

// priorityForIndex assigns descending priorities by creation order.
func priorityForIndex(i int) TaskPriority {
	switch i {
	case 0:
		return PriorityHigh
	case 1:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
