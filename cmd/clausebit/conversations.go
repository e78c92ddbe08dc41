package main

import (
	"github.com/spf13/cobra"

	"github.com/clausebit/companion/internal/conversation"
	"github.com/clausebit/companion/internal/model"
)

func (o *options) store() *conversation.Store {
	return conversation.NewStore(o.client, o.userID, conversation.Options{ListRefreshDelay: -1}, o.log)
}

func newConversationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List recent conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := opts.store().ListConversations(opts.context(cmd.Context()))
			if opts.output != outputText {
				return writeStructured(cmd.OutOrStdout(), opts.output, &model.ListConversationsResponse{
					Conversations: list,
					Total:         len(list),
				})
			}
			return writeConversationTable(cmd.OutOrStdout(), list)
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show the messages of one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := opts.store()
			store.LoadConversation(opts.context(cmd.Context()), args[0])
			transcript := store.Current()
			if opts.output != outputText {
				return writeStructured(cmd.OutOrStdout(), opts.output, transcript)
			}
			return writeMessages(cmd.OutOrStdout(), transcript.Messages)
		},
	}
}
