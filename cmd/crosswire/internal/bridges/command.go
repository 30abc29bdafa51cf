package bridges

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/crosswire/cmd/crosswire/internal"
	"github.com/tinyland-inc/crosswire/pkg/registry"
	"github.com/tinyland-inc/crosswire/pkg/storage"
)

// NewBridgesCommand lists configured bridges straight from the database,
// without a running gateway.
func NewBridgesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bridges",
		Short: "List configured bridges and their endpoints",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return bridgesCmd()
		},
	}
}

func bridgesCmd() error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	reg := registry.New(db)
	bridges, err := reg.ListBridges(context.Background())
	if err != nil {
		return err
	}
	if len(bridges) == 0 {
		fmt.Println("No bridges configured.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Bridge", "Platform", "Channel"})
	for _, bridge := range bridges {
		for _, ep := range bridge.Endpoints {
			table.Append([]string{bridge.Name, string(ep.Platform), ep.ChannelID})
		}
	}
	table.Render()
	return nil
}
