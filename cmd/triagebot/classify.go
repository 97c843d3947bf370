package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/support-triage/triage"
)

func newClassifyCmd(f *rootFlags) *cobra.Command {
	var sender string

	cmd := &cobra.Command{
		Use:   "classify <message...>",
		Short: "Triage one message and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(context.Background()) }()

			res, err := a.service.Submit(cmd.Context(), triage.Message{
				Sender: sender,
				Text:   strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "sender email address (default "+triage.DefaultSender+")")
	return cmd
}

func writeResult(w io.Writer, res triage.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
