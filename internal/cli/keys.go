package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pocccco-max/nexusv2/pkg/groq"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the API key pool",
}

var keysAddCmd = &cobra.Command{
	Use:   "add <secret>",
	Short: "Add an API key to the pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.keys.Add(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("key added")
		return nil
	},
}

var keysRemoveCmd = &cobra.Command{
	Use:   "remove <secret>",
	Short: "Remove an API key from the pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.keys.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("key removed")
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys and their health",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		keys := a.keys.Keys()
		if len(keys) == 0 {
			fmt.Println("no keys configured")
			return nil
		}
		for _, k := range keys {
			state := "active"
			if !k.Active {
				state = "disabled"
			}
			fmt.Printf("%-14s %-8s failures=%d\n", shorten(k.Secret), state, k.FailCount)
		}
		return nil
	},
}

var keysTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Probe every key against the provider",
	Long: `Probe every key with a minimal completion call. A key that answers is
reset to healthy, which is also how a disabled key is brought back; a key
rejected by the provider gets a failure recorded against it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		keys := a.keys.Keys()
		if len(keys) == 0 {
			fmt.Println("no keys configured")
			return nil
		}

		probe := groq.Request{
			Model:       a.cfg.API.Model,
			Messages:    []groq.Message{{Role: "user", Content: "ping"}},
			Temperature: 0,
			MaxTokens:   8,
		}

		for _, k := range keys {
			_, err := a.client.Complete(ctx, k.Secret, probe)
			if err == nil {
				if err := a.keys.ReportSuccess(ctx, k.Secret); err != nil {
					return err
				}
				fmt.Printf("%-14s ok\n", shorten(k.Secret))
				continue
			}

			if groq.KeyFault(err) {
				if reportErr := a.keys.ReportFailure(ctx, k.Secret); reportErr != nil {
					return reportErr
				}
			}
			fmt.Printf("%-14s failed: %v\n", shorten(k.Secret), err)
		}
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysAddCmd, keysRemoveCmd, keysListCmd, keysTestCmd)
	rootCmd.AddCommand(keysCmd)
}

func shorten(secret string) string {
	if len(secret) <= 12 {
		return secret
	}
	return secret[:8] + "…"
}
