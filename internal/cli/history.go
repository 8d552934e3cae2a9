package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocccco-max/nexusv2/pkg/chat"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage stored conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		now := time.Now()
		active := a.chats.ActiveID()
		for _, c := range a.chats.List() {
			marker := " "
			if c.ID == active {
				marker = "*"
			}
			fmt.Printf("%s %s  %-40s  %d msgs  %s\n",
				marker, c.ID, c.Title, len(c.Messages), chat.FormatRelativeTime(c.Updated, now))
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.chats.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("chat deleted")
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <id>",
	Short: "Empty a conversation in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.chats.Clear(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("chat cleared")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyDeleteCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
