package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/AliceSyndrome285/CradleAI/internal/profile"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
	"github.com/AliceSyndrome285/CradleAI/server/service/chathistory"
	"github.com/AliceSyndrome285/CradleAI/server/service/message"
	"github.com/AliceSyndrome285/CradleAI/store"
)

// session is what every message command needs: the store, the history over
// it and a dispatcher.
type session struct {
	profile *profile.Profile
	store   *store.Store
	history *chathistory.History
	service *message.Service
}

func openSession(ctx context.Context) (*session, error) {
	instanceProfile, err := loadProfile()
	if err != nil {
		return nil, err
	}
	storeInstance, err := openStore(ctx, instanceProfile)
	if err != nil {
		return nil, err
	}
	history := chathistory.New(storeInstance)
	return &session{
		profile: instanceProfile,
		store:   storeInstance,
		history: history,
		service: message.NewService(history, message.WithLogger(slog.Default())),
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

func (s *session) settings() *ai.APISettings {
	return ai.NewAPISettingsFromProfile(s.profile)
}

// print renders the conversation after a command.
func (s *session) print(cmd *cobra.Command, conversationID string, messages []msgindex.ClientMessage, format string) error {
	log, err := s.history.GetCleanChatHistory(cmd.Context(), conversationID)
	if err != nil {
		return err
	}
	return writeMessages(cmd.OutOrStdout(), log, messages, format)
}

func parseRoleFlag(raw string) (msgindex.Role, error) {
	switch raw {
	case "user":
		return msgindex.RoleUser, nil
	case "model", "assistant", "bot":
		return msgindex.RoleModel, nil
	}
	return "", errors.Errorf("invalid role %q: must be user or model", raw)
}

func newHistoryCmd() *cobra.Command {
	var formatFlag string
	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print a conversation with fresh client ids and role-indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			messages, err := s.service.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.print(cmd, args[0], messages, formatFlag)
		},
	}
	cmd.Flags().StringVar(&formatFlag, "format", "table", "output format: table or json")
	return cmd
}

func newResolveCmd() *cobra.Command {
	var roleFlag string
	cmd := &cobra.Command{
		Use:   "resolve <conversation-id> <message-id>",
		Short: "Resolve a client message id to a role-index without changing anything",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRoleFlag(roleFlag)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			roleIndex, err := s.service.ResolveIndex(cmd.Context(), args[0], args[1], role, nil)
			if err != nil {
				return err
			}
			if roleIndex == msgindex.NotFound {
				return errors.Errorf("message %s not found", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s role-index %d\n", role, roleIndex)
			return nil
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "model", "role of the message: user or model")
	return cmd
}

func newEditCmd() *cobra.Command {
	var roleFlag, formatFlag string
	cmd := &cobra.Command{
		Use:   "edit <conversation-id> <message-id> <text>",
		Short: "Replace the text of a message",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRoleFlag(roleFlag)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			req := &message.EditRequest{ConversationID: args[0], MessageID: args[1], Text: args[2], Settings: s.settings()}
			edit := s.service.EditAI
			if role == msgindex.RoleUser {
				edit = s.service.EditUser
			}
			messages, err := edit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.print(cmd, args[0], messages, formatFlag)
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "model", "role of the message: user or model")
	cmd.Flags().StringVar(&formatFlag, "format", "table", "output format: table or json")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var roleFlag, formatFlag string
	cmd := &cobra.Command{
		Use:   "delete <conversation-id> <message-id>",
		Short: "Delete a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRoleFlag(roleFlag)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			req := &message.DeleteRequest{ConversationID: args[0], MessageID: args[1], Settings: s.settings()}
			remove := s.service.DeleteAI
			if role == msgindex.RoleUser {
				remove = s.service.DeleteUser
			}
			messages, err := remove(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.print(cmd, args[0], messages, formatFlag)
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "model", "role of the message: user or model")
	cmd.Flags().StringVar(&formatFlag, "format", "table", "output format: table or json")
	return cmd
}

func newRegenerateCmd() *cobra.Command {
	var characterFlag, formatFlag string
	var stream bool
	cmd := &cobra.Command{
		Use:   "regenerate <conversation-id> <message-id>",
		Short: "Regenerate an AI message and drop everything after it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			req := &message.RegenerateRequest{
				ConversationID: args[0],
				MessageID:      args[1],
				CharacterID:    characterFlag,
				UserNickname:   s.profile.UserNickname,
				Settings:       s.settings(),
			}
			if stream {
				out := cmd.ErrOrStderr()
				req.OnStream = func(chunk string) { fmt.Fprint(out, chunk) }
			}
			messages, err := s.service.Regenerate(cmd.Context(), req)
			if stream {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}
			return s.print(cmd, args[0], messages, formatFlag)
		},
	}
	cmd.Flags().StringVar(&characterFlag, "character", "", "character id used in the prompt (required)")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the reply to stderr while it is generated")
	cmd.Flags().StringVar(&formatFlag, "format", "table", "output format: table or json")
	return cmd
}
