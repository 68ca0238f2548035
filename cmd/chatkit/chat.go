package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/curalink/chatkit/internal/config"
	"github.com/curalink/chatkit/internal/rooms"
	"github.com/curalink/chatkit/internal/session"
	"github.com/curalink/chatkit/internal/timeline"
	"github.com/curalink/chatkit/internal/transport"
	"github.com/curalink/chatkit/internal/typing"
)

var (
	flagChatSocketURL    string
	flagChatRESTURL      string
	flagChatToken        string
	flagChatUser         string
	flagChatConversation string
	flagChatGroup        bool
	flagChatSendTimeout  time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a conversation from the terminal",
	RunE:  runChat,
}

func init() {
	flags := chatCmd.Flags()
	flags.StringVar(&flagChatSocketURL, "socket-url", "ws://localhost:8080/ws", "websocket endpoint")
	flags.StringVar(&flagChatRESTURL, "rest-url", "http://localhost:8080/api", "REST API base URL")
	flags.StringVar(&flagChatToken, "token", "", "bearer token (mint one with the token command)")
	flags.StringVar(&flagChatUser, "user", "", "your user ID, must match the token subject")
	flags.StringVar(&flagChatConversation, "conversation", "", "conversation to join")
	flags.BoolVar(&flagChatGroup, "group", false, "join as a group conversation")
	flags.DurationVar(&flagChatSendTimeout, "send-timeout", 0, "per-send timeout (0 disables)")
	_ = chatCmd.MarkFlagRequired("token")
	_ = chatCmd.MarkFlagRequired("user")
	_ = chatCmd.MarkFlagRequired("conversation")
}

func runChat(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Config{
		SocketURL:   flagChatSocketURL,
		RESTBaseURL: flagChatRESTURL,
		SelfID:      flagChatUser,
		SendTimeout: flagChatSendTimeout,
	}
	sess, err := session.NewManager(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Stop()

	if err := sess.Start(ctx, flagChatToken); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	kind := rooms.Direct
	if flagChatGroup {
		kind = rooms.Group
	}
	if err := sess.OpenConversation(ctx, flagChatConversation, kind); err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}

	out := cmd.OutOrStdout()

	unsubTimeline := sess.SubscribeTimeline(flagChatConversation, printTimelineTail(out, flagChatUser))
	defer unsubTimeline()

	unsubTyping := sess.SubscribeTyping(func(sig typing.Signal) {
		if sig.ConversationID != flagChatConversation || sig.UserID == flagChatUser {
			return
		}
		if sig.IsTyping {
			fmt.Fprintf(out, "* %s is typing...\n", sig.UserID)
		}
	})
	defer unsubTyping()

	unsubState := sess.SubscribeConnectionState(func(ev transport.StateEvent) {
		if ev.Old == ev.New {
			return
		}
		fmt.Fprintf(out, "* connection: %s\n", ev.New)
	})
	defer unsubState()

	fmt.Fprintf(out, "joined %s as %s. Type a message and press enter; /quit to leave.\n",
		flagChatConversation, flagChatUser)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/quit":
				return nil
			}

			sess.SendTyping(flagChatConversation, true)
			if _, err := sess.Send(ctx, flagChatConversation, line); err != nil {
				logger.Error().Err(err).Msg("send failed")
			}
			sess.SendTyping(flagChatConversation, false)
		}
	}
}

// printTimelineTail prints messages as they reach the timeline, skipping
// entries it has already shown and the user's own pending echoes.
func printTimelineTail(out io.Writer, selfID string) func([]timeline.Message) {
	seen := make(map[string]struct{})
	return func(msgs []timeline.Message) {
		for _, msg := range msgs {
			if msg.Status != timeline.StatusConfirmed {
				continue
			}
			if _, ok := seen[msg.ID]; ok {
				continue
			}
			seen[msg.ID] = struct{}{}
			name := msg.SenderID
			if name == selfID {
				name = "you"
			}
			fmt.Fprintf(out, "[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), name, msg.Body)
		}
	}
}
