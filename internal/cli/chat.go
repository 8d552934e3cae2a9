package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocccco-max/nexusv2/pkg/chat"
	"github.com/pocccco-max/nexusv2/pkg/groq"
	"github.com/pocccco-max/nexusv2/pkg/pipeline"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat on the active conversation. Plain lines are
sent to the model; slash commands manage conversations:

  /new                start a new chat
  /list               list chats, most recent first
  /switch <id>        switch to a chat
  /delete [id]        delete a chat (default: the active one)
  /clear              clear the active chat
  /image <path> [text] send an image, optionally with text
  /quit               exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printHistory(a)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
		case line == "/quit", line == "/exit":
			return nil
		case strings.HasPrefix(line, "/"):
			if err := handleCommand(ctx, a, line); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		default:
			send(ctx, a, line, "")
		}

		fmt.Print("> ")
	}

	return scanner.Err()
}

func handleCommand(ctx context.Context, a *app, line string) error {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/new":
		c, err := a.chats.Create(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("started chat %s\n", c.ID)

	case "/list":
		printChatList(a)

	case "/switch":
		if arg == "" {
			return fmt.Errorf("usage: /switch <id>")
		}
		if _, ok := a.chats.Get(arg); !ok {
			return fmt.Errorf("no chat %q", arg)
		}
		a.chats.SwitchTo(arg)
		printHistory(a)

	case "/delete":
		id := arg
		if id == "" {
			id = a.chats.ActiveID()
		}
		if err := a.chats.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("deleted chat %s, now on %s\n", id, a.chats.ActiveID())

	case "/clear":
		if err := a.chats.Clear(ctx, a.chats.ActiveID()); err != nil {
			return err
		}
		fmt.Println("chat cleared")

	case "/image":
		if arg == "" {
			return fmt.Errorf("usage: /image <path> [text]")
		}
		dataURI, err := groq.ReadImageDataURI(arg)
		if err != nil {
			return err
		}
		text := ""
		if len(fields) > 2 {
			text = strings.Join(fields[2:], " ")
		}
		send(ctx, a, text, dataURI)

	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}

	return nil
}

func send(ctx context.Context, a *app, text, image string) {
	reply, err := a.pipe.Send(ctx, text, image)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		// A send is already running on this chat; drop the input.
		return
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	fmt.Printf("\n%s\n\n", reply.Content)
}

func printChatList(a *app) {
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
}

func printHistory(a *app) {
	c, ok := a.chats.Get(a.chats.ActiveID())
	if !ok {
		return
	}
	fmt.Printf("[%s]\n", c.Title)
	for _, m := range c.Messages {
		prefix := "you"
		if m.Role == chat.RoleAssistant {
			prefix = " ai"
		}
		fmt.Printf("%s: %s\n", prefix, m.Content)
	}
}
