package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opengrid/gridctl/core/rpc"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List the hosts defined in the config file",
	RunE:  hostsCmdRun,
}

func init() {
	rootCmd.AddCommand(hostsCmd)
}

func hostsCmdRun(_ *cobra.Command, _ []string) error {
	hosts := viper.GetStringMap("hosts")
	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	type hostEntry struct {
		Name string `json:"name"`
		URL  string `json:"url"`
		Port int    `json:"port"`
	}
	entries := make([]hostEntry, 0, len(names))
	for _, name := range names {
		port := viper.GetInt("hosts." + name + ".port")
		if port == 0 {
			port = rpc.DefaultPort
		}
		entries = append(entries, hostEntry{
			Name: name,
			URL:  viper.GetString("hosts." + name + ".url"),
			Port: port,
		})
	}
	return render(entries, func() {
		fmt.Printf("%s\n", header("NAME URL PORT"))
		for _, e := range entries {
			fmt.Printf("%s %s %d\n", e.Name, e.URL, e.Port)
		}
	})
}
