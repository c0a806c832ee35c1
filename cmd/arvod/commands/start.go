package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arvo-net/arvo/internal/p2p"
	"github.com/arvo-net/arvo/libs/os"
	"github.com/arvo-net/arvo/node"
	"github.com/arvo-net/arvo/types"
)

// StartCmd runs the node until interrupted.
var StartCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"node", "run"},
	Short:   "Run the arvo node",
	RunE:    startNode,
}

func startNode(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	nodeKey, err := types.LoadOrGenNodeKey(cfg.NodeKeyFile())
	if err != nil {
		return err
	}

	network := p2p.NewMemoryNetwork(logger.With("module", "p2p"))
	transport, err := network.CreateNode(nodeKey.ID)
	if err != nil {
		return err
	}

	n, err := node.New(cfg, logger, transport)
	if err != nil {
		return err
	}

	if err := n.Start(ctx); err != nil {
		return err
	}

	os.TrapSignal(logger, func() {
		cancel()
		n.Stop()
		n.Wait()
	})

	// Run forever.
	select {}
}
