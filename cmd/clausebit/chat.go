package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clausebit/companion/internal/conversation"
	"github.com/clausebit/companion/internal/model"
)

func newChatCmd(opts *options) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the legal assistant",
		Long: `Start an interactive chat. Each input line is sent as one message.

Commands:
  /new    start a new chat
  /quit   exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := opts.context(cmd.Context())
			out := cmd.OutOrStdout()
			store := opts.store()

			if sessionID != "" {
				store.LoadConversation(ctx, sessionID)
			}
			if err := writeMessages(out, store.Current().Messages); err != nil {
				return err
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, userStyle.Render("> "))
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}

				line := scanner.Text()
				switch strings.TrimSpace(line) {
				case "/quit", "/exit":
					return nil
				case "/new":
					transcript := store.StartNewChat()
					if err := writeMessages(out, transcript.Messages); err != nil {
						return err
					}
					continue
				}

				before := len(store.Current().Messages)
				transcript, err := store.SendMessage(ctx, line)
				if errors.Is(err, conversation.ErrEmptyMessage) {
					continue
				}
				if err != nil {
					return err
				}
				if err := writeMessages(out, replies(transcript.Messages, before)); err != nil {
					return err
				}
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing conversation")
	return cmd
}

// replies returns the assistant messages appended after index before.
func replies(messages []model.Message, before int) []model.Message {
	var out []model.Message
	for _, m := range messages[min(before, len(messages)):] {
		if m.Role == model.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

func newAuthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Check whether the session token is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := opts.client.ExtensionAuth(opts.context(cmd.Context()))
			if err != nil {
				return err
			}
			status := &model.AuthStatus{IsAuthenticated: ok}
			if opts.output != outputText {
				return writeStructured(cmd.OutOrStdout(), opts.output, status)
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), assistantStyle.Render("Signed in as "+opts.userID))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render("Not signed in. Sign in on the ClauseBit dashboard and pass --token."))
			}
			return nil
		},
	}
}
