package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opengrid/gridctl/core/periodictask"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <host> <kind>",
	Short: "Force one state-refresh poll and print the result",
	Long:  "Force one state-refresh poll and print the result.\n\nKinds: " + strings.Join(sortedKindNames(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE:  refreshCmdRun,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func refreshCmdRun(_ *cobra.Command, args []string) error {
	kind := periodictask.New(args[1])
	if kind == periodictask.Invalid {
		return fmt.Errorf("invalid task kind %q, want one of %s", args[1], strings.Join(sortedKindNames(), ", "))
	}
	s, err := newSession(args[0])
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.waitResult(kind)
	if err != nil {
		return err
	}
	return render(result, func() {
		fmt.Printf("%s %s: %+v\n", s.host, kind, result)
	})
}

func sortedKindNames() []string {
	names := periodictask.Names()
	sort.Strings(names)
	return names
}
