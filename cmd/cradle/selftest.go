package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
	"github.com/AliceSyndrome285/CradleAI/server/service/message"
)

func newSelftestCmd() *cobra.Command {
	var pageSize, samples int
	var keep bool
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Check id resolution against a disposable conversation in the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			conversationID := msgindex.NewConversationID(time.Now().Add(-2 * time.Hour))
			diagnostics := message.NewDiagnostics(s.service, s.history)
			if !keep {
				defer func() {
					if err := diagnostics.CleanupTestData(ctx, conversationID); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "cleanup failed: %v\n", err)
					}
				}()
			}

			report, err := diagnostics.RunPaginationCheck(ctx, conversationID, pageSize)
			if err != nil {
				return err
			}
			for _, line := range report.Lines {
				fmt.Fprintln(out, line)
			}

			cases, err := diagnostics.GenerateTestCases(ctx, conversationID, samples)
			if err != nil {
				return err
			}
			passed := 0
			for _, result := range diagnostics.CheckIndexLookup(ctx, conversationID, cases) {
				if result.Success {
					passed++
					continue
				}
				fmt.Fprintf(out, "FAIL lookup %s (%s): want %d, got %d %s\n",
					result.MessageID, result.Role, result.ExpectedIndex, result.ActualIndex, result.Error)
			}
			fmt.Fprintf(out, "sampled lookups: %d/%d\n", passed, len(cases))

			if !report.Success || passed != len(cases) {
				return errors.New("self test failed")
			}
			fmt.Fprintf(out, "self test passed on conversation %s\n", conversationID)
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 30, "client page size")
	cmd.Flags().IntVar(&samples, "samples", 20, "number of sampled lookups")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the test conversation")
	return cmd
}
