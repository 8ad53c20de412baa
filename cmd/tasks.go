package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opengrid/gridctl/core/periodictask"
	"github.com/opengrid/gridctl/core/rpc"
)

var tasksActiveFlag bool

var tasksCmd = &cobra.Command{
	Use:   "tasks <host>",
	Short: "List the workunit tasks of a host",
	Args:  cobra.ExactArgs(1),
	RunE:  tasksCmdRun,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.Flags().BoolVar(&tasksActiveFlag, "active", false, "List the active tasks only")
}

func tasksCmdRun(_ *cobra.Command, args []string) error {
	s, err := newSession(args[0])
	if err != nil {
		return err
	}
	defer s.close()

	if tasksActiveFlag {
		if err := s.ctrl.SetActiveOnlyTasks(s.host, true); err != nil {
			return err
		}
	}
	result, err := s.waitResult(periodictask.Tasks)
	if err != nil {
		return err
	}
	resp, ok := result.(*rpc.TasksResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", result)
	}
	return render(resp.Tasks, func() {
		fmt.Printf("%s\n", header("NAME STATE DONE"))
		for _, task := range resp.Tasks {
			done := "-"
			if task.ActiveTask != nil {
				done = fmt.Sprintf("%.1f%%", task.ActiveTask.FractionDone*100)
			}
			fmt.Printf("%s %d %s\n", task.Name, task.State, done)
		}
	})
}
