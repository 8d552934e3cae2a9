package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pocccco-max/nexusv2/pkg/groq"
)

var askImagePath string

var askCmd = &cobra.Command{
	Use:   "ask [text]",
	Short: "Send one message on the active chat and print the reply",
	Args:  cobra.ArbitraryArgs,
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askImagePath, "image", "", "attach an image file")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text := strings.TrimSpace(strings.Join(args, " "))

	if text == "" && askImagePath == "" {
		return fmt.Errorf("nothing to send: pass text, --image, or both")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	image := ""
	if askImagePath != "" {
		image, err = groq.ReadImageDataURI(askImagePath)
		if err != nil {
			return err
		}
	}

	reply, err := a.pipe.Send(ctx, text, image)
	if err != nil {
		return err
	}

	fmt.Println(reply.Content)
	return nil
}
