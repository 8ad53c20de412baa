package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opengrid/gridctl/util/logging"
)

var (
	configFlag string
	colorFlag  string
	formatFlag string
	debugFlag  bool
	logDirFlag string
)

var rootCmd = &cobra.Command{
	Use:               "gridctl",
	Short:             "Manage remote compute daemons: poll state, control run modes, drive tasks and transfers.",
	PersistentPreRunE: persistentPreRunE,
	SilenceUsage:      true,
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFlag, "config", "", "Config file path (default ~/.gridctl.yaml)")
	addOutputFlags(flags)
	flags.BoolVar(&debugFlag, "debug", false, "Log debug messages")
	flags.StringVar(&logDirFlag, "log-dir", "", "Also log to rolling files in this directory")
}

// addOutputFlags registers the rendering flags shared by the verbs.
func addOutputFlags(flags *pflag.FlagSet) {
	flags.StringVar(&colorFlag, "color", "auto", "Output colorization: yes, no or auto")
	flags.StringVar(&formatFlag, "format", "table", "Output format: table or json")
}

func persistentPreRunE(_ *cobra.Command, _ []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.TimestampFieldName = "t"
	zerolog.LevelFieldName = "l"
	zerolog.MessageFieldName = "m"

	if debugFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	l := logging.Configure(logging.Config{
		WithConsoleLog: true,
		WithColor:      useColor(),
		WithLogFile:    logDirFlag != "",
		Directory:      logDirFlag,
		Filename:       "gridctl.log",
		MaxSize:        5,
		MaxBackups:     1,
		MaxAge:         30,
	})
	log.Logger = *l.Logger

	return loadConfig()
}

func loadConfig() error {
	if configFlag != "" {
		viper.SetConfigFile(configFlag)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".gridctl")
	}
	viper.SetEnvPrefix("gridctl")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && configFlag == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
