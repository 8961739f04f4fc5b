package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/tui"
)

func newBrowseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse datasets, tables and columns interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, opts.runTUI)
		},
	}
}

func runBrowser(ctx context.Context, svc *app.Service) error {
	p := tea.NewProgram(tui.NewModel(svc),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}
