package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arvo-net/arvo/config"
	"github.com/arvo-net/arvo/libs/os"
	"github.com/arvo-net/arvo/types"
)

// InitFilesCmd initializes a fresh node home directory: config file and node
// identity key. Existing files are left untouched.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the node's home directory",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	nodeKeyFile := cfg.NodeKeyFile()
	if os.FileExists(nodeKeyFile) {
		logger.Info("found node key", "path", nodeKeyFile)
	} else {
		nodeKey, err := types.LoadOrGenNodeKey(nodeKeyFile)
		if err != nil {
			return err
		}
		logger.Info("generated node key", "path", nodeKeyFile, "id", nodeKey.ID)
	}

	configFile := cfg.ConfigFile()
	if os.FileExists(configFile) {
		logger.Info("found config file", "path", configFile)
	} else {
		if err := config.WriteConfigFile(cfg.RootDir, cfg); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		logger.Info("generated config file", "path", configFile)
	}

	return nil
}
