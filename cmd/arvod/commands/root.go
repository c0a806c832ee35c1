package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arvo-net/arvo/config"
	"github.com/arvo-net/arvo/libs/log"
)

var (
	cfg    = config.DefaultConfig()
	logger = log.MustNewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo, false)
)

// ParseConfig retrieves the default configuration and merges the values
// bound by viper (flags, config file, environment) on top of it.
func ParseConfig() (*config.Config, error) {
	conf := config.DefaultConfig()
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)
	if err := config.EnsureRoot(conf.RootDir); err != nil {
		return nil, err
	}
	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCmd is the root command. Every subcommand that needs the node's
// configuration hangs off it.
var RootCmd = &cobra.Command{
	Use:   "arvod",
	Short: "Arvo intent settlement node",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == cobra.ShellCompRequestCmd {
			return nil
		}

		if err := bindFlagsAndEnv(cmd); err != nil {
			return err
		}

		var err error
		cfg, err = ParseConfig()
		if err != nil {
			return err
		}

		logger, err = log.NewDefaultLogger(cfg.LogFormat, cfg.LogLevel, false)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().String("home", defaultHome(), "directory for config and data")
	RootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level")
}

// bindFlagsAndEnv merges flag values, ARVO_-prefixed environment variables,
// and the config file into viper before the configuration is parsed.
func bindFlagsAndEnv(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	viper.SetEnvPrefix("ARVO")
	viper.AutomaticEnv()

	home := viper.GetString("home")
	viper.Set("home", home)
	viper.SetConfigName("config")
	viper.AddConfigPath(filepath.Join(home, "config"))

	if err := viper.ReadInConfig(); err != nil {
		// The config file is optional; stale defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func defaultHome() string {
	if home := os.Getenv("ARVOHOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".arvo"
	}
	return filepath.Join(userHome, ".arvo")
}
