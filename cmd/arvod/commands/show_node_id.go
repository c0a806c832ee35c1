package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arvo-net/arvo/types"
)

// ShowNodeIDCmd prints the node's gossip identity.
var ShowNodeIDCmd = &cobra.Command{
	Use:   "show-node-id",
	Short: "Show this node's ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeKey, err := types.LoadNodeKey(cfg.NodeKeyFile())
		if err != nil {
			return err
		}
		fmt.Println(nodeKey.ID)
		return nil
	},
}
