// Command chatclient is a line-oriented terminal client for the chat server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/multiroom-chat/client"
	domain "github.com/example/multiroom-chat/domain/chat"
	"github.com/example/multiroom-chat/protocol"
)

var (
	serverURL  string
	username   string
	typingIdle time.Duration
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "chatclient",
	Short: "Terminal client for the multi-room chat server",
	Long: `chatclient connects to the chat server over WebSocket and joins as --username.

Type a line to send it to the current room. Commands:
  /name <user>     join with another username after a rejected join
  /join <room>     switch to (or create) a room
  /create <room>   create a room without switching
  /rooms           list rooms
  /who             list members of the current room
  /logout          drop the session and reconnect
  /quit            exit`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "url", "ws://localhost:3001/ws", "chat server WebSocket URL")
	rootCmd.Flags().StringVarP(&username, "username", "u", "", "username to join as")
	rootCmd.Flags().DurationVar(&typingIdle, "typing-idle", client.DefaultTypingIdle, "idle time before typing stops")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	_ = rootCmd.MarkFlagRequired("username")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent := client.New(
		client.DialWebSocket(serverURL, logger),
		client.WithTypingIdle(typingIdle),
		client.WithLogger(logger),
		client.WithObserver(func(f protocol.Frame, v client.View) { render(out, f, v) }),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agent.Run(ctx)
	})
	g.Go(func() error {
		if err := agent.Join(ctx, username); err != nil {
			return err
		}
		return readCommands(ctx, agent, cmd.InOrStdin(), out)
	})

	err := g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var errQuit = errors.New("quit")

func readCommands(ctx context.Context, agent *client.Agent, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := handleLine(ctx, agent, line, out); err != nil {
				if fatal(err) {
					return err
				}
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}

func handleLine(ctx context.Context, agent *client.Agent, line string, out io.Writer) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "":
		return nil
	case "/quit":
		return errQuit
	case "/name":
		if strings.TrimSpace(arg) == "" {
			return errors.New("usage: /name <username>")
		}
		username = strings.TrimSpace(arg)
		return agent.Join(ctx, username)
	case "/join":
		return agent.SwitchRoom(ctx, arg)
	case "/create":
		return agent.CreateRoom(ctx, arg)
	case "/logout":
		if err := agent.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "* logged out; rejoining as", username)
		return agent.Join(ctx, username)
	case "/rooms":
		printRooms(out, agent.View().Rooms)
		return nil
	case "/who":
		printMembers(out, agent.View().Members)
		return nil
	}

	// A line is typed before it is sent, so peers see the typing edge.
	if err := agent.Keystroke(ctx); err != nil {
		return err
	}
	return agent.Send(ctx, line)
}

// fatal reports whether err ends the command loop. Everything else is
// printed and the loop keeps reading.
func fatal(err error) bool {
	return errors.Is(err, errQuit) ||
		errors.Is(err, client.ErrNotRunning) ||
		errors.Is(err, client.ErrDisconnected) ||
		errors.Is(err, client.ErrTransportClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func render(out io.Writer, f protocol.Frame, v client.View) {
	switch f.Event {
	case protocol.EventJoinSuccess:
		fmt.Fprintf(out, "* joined %s as %s\n", v.User.Room, v.User.Username)
		for _, m := range v.Messages {
			printMessage(out, m)
		}
		printMembers(out, v.Members)
	case protocol.EventJoinError:
		fmt.Fprintf(out, "! %s (try /name <username>)\n", v.Error)
	case protocol.EventMessageHistory:
		if v.User != nil {
			fmt.Fprintf(out, "* now in %s\n", v.User.Room)
		}
		for _, m := range v.Messages {
			printMessage(out, m)
		}
	case protocol.EventMessageReceive:
		printMessage(out, v.Messages[len(v.Messages)-1])
	case protocol.EventPresenceJoined, protocol.EventPresenceLeft:
		var p protocol.Presence
		if err := f.Bind(&p); err == nil {
			verb := "joined"
			if f.Event == protocol.EventPresenceLeft {
				verb = "left"
			}
			fmt.Fprintf(out, "* %s %s\n", p.Username, verb)
		}
	case protocol.EventTypingUpdate:
		if names := v.TypingUsers(); len(names) > 0 {
			fmt.Fprintf(out, "* typing: %s\n", strings.Join(names, ", "))
		}
	}
}

func printMessage(out io.Writer, m domain.Message) {
	fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), m.SenderName, m.Content)
}

func printRooms(out io.Writer, rooms []domain.RoomSummary) {
	for _, r := range rooms {
		fmt.Fprintf(out, "  #%s (%d)\n", r.Name, r.Count)
	}
}

func printMembers(out io.Writer, members []domain.Member) {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Username)
	}
	fmt.Fprintf(out, "* here: %s\n", strings.Join(names, ", "))
}
