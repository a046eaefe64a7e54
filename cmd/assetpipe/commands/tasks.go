package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
)

// TasksCmd lists the task graph.
type TasksCmd struct{}

func (t *TasksCmd) Run(g *Global, root *CLI) error {
	p, err := openProject(root.Config)
	if err != nil {
		return err
	}
	defer p.Close(context.Background())

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	for _, task := range p.scheduler.Graph().Tasks() {
		deps := "-"
		if len(task.Deps) > 0 {
			deps = strings.Join(task.Deps, ", ")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\tafter: %s\n", task.Name, task.Description, deps)
	}
	return tw.Flush()
}
