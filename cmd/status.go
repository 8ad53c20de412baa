package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opengrid/gridctl/core/periodictask"
	"github.com/opengrid/gridctl/core/rpc"
)

var statusCmd = &cobra.Command{
	Use:   "status <host>",
	Short: "Print the daemon activity summary of a host",
	Args:  cobra.ExactArgs(1),
	RunE:  statusCmdRun,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCmdRun(_ *cobra.Command, args []string) error {
	s, err := newSession(args[0])
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.waitResult(periodictask.CCStatus)
	if err != nil {
		return err
	}
	resp, ok := result.(*rpc.CCStatusResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", result)
	}
	return render(resp.CCStatus, func() {
		st := resp.CCStatus
		fmt.Printf("%s\n", header("MODE VALUE"))
		fmt.Printf("task %s\n", renderMode(st.TaskMode, st.TaskSuspendReason))
		fmt.Printf("gpu %s\n", renderMode(st.GpuMode, st.GpuSuspendReason))
		fmt.Printf("network %s\n", renderMode(st.NetworkMode, st.NetworkSuspendReason))
	})
}

func renderMode(mode, suspendReason int) string {
	if suspendReason != 0 {
		return bad(fmt.Sprintf("suspended (%d)", suspendReason))
	}
	return good(fmt.Sprintf("%d", mode))
}
