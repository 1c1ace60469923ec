package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/gluk-w/termbridge/internal/config"
	"github.com/gluk-w/termbridge/internal/database"
	"github.com/gluk-w/termbridge/internal/inventory"
	"github.com/gluk-w/termbridge/internal/logging"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the device inventory",
}

var devicesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import devices from a devices.json or YAML file",
	Long: `Import devices into the inventory. JSON files use the web UI's devices.json
format; .yaml/.yml files hold the same records, optionally under a "devices" key.
Devices with an existing id are replaced. Passwords and private keys are
encrypted before they are stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := openInventory()
		if err != nil {
			return err
		}
		defer done()

		n, err := store.ImportFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d device(s)\n", n)
		return nil
	},
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := openInventory()
		if err != nil {
			return err
		}
		defer done()

		views, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDESCRIPTION\tPROTOCOL\tTARGET\tKEY")
		for _, v := range views {
			target := v.Address
			if v.Username != "" {
				target = v.Username + "@" + target
			}
			if v.Port > 0 {
				target += ":" + strconv.Itoa(v.Port)
			}
			key := "-"
			if v.HasPrivateKey {
				key = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Description, v.Protocol, target, key)
		}
		return tw.Flush()
	},
}

func init() {
	devicesCmd.AddCommand(devicesImportCmd, devicesListCmd)
}

func openInventory() (*inventory.Store, func(), error) {
	if err := config.Load(); err != nil {
		return nil, nil, err
	}
	config.Cfg.LogPath = ""
	logging.Init()
	if err := database.Init(); err != nil {
		return nil, nil, fmt.Errorf("database init: %w", err)
	}
	return inventory.New(database.DB), func() {
		if err := database.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "close database:", err)
		}
	}, nil
}
