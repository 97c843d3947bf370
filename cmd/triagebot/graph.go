package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/support-triage/classify"
	"github.com/dshills/support-triage/notify"
	"github.com/dshills/support-triage/triage"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the triage workflow as a Mermaid flowchart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeGraph(cmd.OutOrStdout())
		},
	}
}

// writeGraph renders the workflow topology. No model or delivery backend is
// needed, so placeholders stand in for both.
func writeGraph(w io.Writer) error {
	g, err := triage.NewGraph(triage.Deps{
		Classifier: classify.NewScripted(),
		Notifier:   notify.NewLogNotifier(nil),
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, g.Mermaid())
	return err
}
