// cmd/init.go
package cmd

import (
	"fmt"
	"os"

	"github.com/markb/workhub/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new message store",
	Long:  `Creates the SQLite database with the message tables, or the Badger data directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		path := cfg.Store.SQLitePath
		if cfg.Store.Backend == "badger" {
			path = cfg.Store.BadgerDir
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("message store already exists at %s", path)
		}

		st, err := store.Open(cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to create message store: %w", err)
		}
		defer st.Close()

		fmt.Printf("Initialized %s message store at %s\n", cfg.Store.Backend, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	addStoreFlags(initCmd)
}
