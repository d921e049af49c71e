// cmd/history.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/markb/workhub/internal/store"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <channel>",
	Short: "Print recent messages of a channel",
	Long:  `Reads the message store directly and prints the newest messages of a channel, newest first.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := store.Open(cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open message store: %w", err)
		}
		defer st.Close()

		msgs, err := st.ListRecent(context.Background(), args[0], limit, offset)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}

		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("%s  %-16s %s\n", m.CreatedAt.Local().Format(time.DateTime), m.Sender, m.Body)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	addStoreFlags(historyCmd)
	historyCmd.Flags().Int("limit", store.DefaultPageSize, "Number of messages to show")
	historyCmd.Flags().Int("offset", 0, "Number of newest messages to skip")
	historyCmd.Flags().Bool("json", false, "Print messages as JSON")
}
