package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opengrid/gridctl/core/rpc"
)

var runmodeCmd = &cobra.Command{
	Use:   "runmode <host> <always|auto|never|restore>",
	Short: "Set the task activity mode of a host",
	Args:  cobra.ExactArgs(2),
	RunE:  runmodeCmdRun,
}

func init() {
	rootCmd.AddCommand(runmodeCmd)
}

func runmodeCmdRun(_ *cobra.Command, args []string) error {
	mode := rpc.NewRunMode(args[1])
	if mode == rpc.RunModeInvalid {
		return fmt.Errorf("invalid run mode %q", args[1])
	}
	s, err := newSession(args[0])
	if err != nil {
		return err
	}
	defer s.close()

	p, err := s.ctrl.SetRunMode(s.host, mode)
	if err != nil {
		return err
	}
	ok, err := p.Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("host %s refused the run mode change", s.host)
	}
	fmt.Printf("%s\n", good(fmt.Sprintf("run mode of %s set to %s", s.host, mode)))
	return nil
}
