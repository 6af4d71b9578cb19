package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dream-ai/paperqa/internal/rag"
	"github.com/dream-ai/paperqa/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [FILE.pdf]",
	Short: "Interactive shell: load PDFs and generate answers",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var initial string
	if len(args) == 1 {
		initial = args[0]
	}

	// the program does not exist until the model is built, so state changes
	// are forwarded through this variable
	var p *tea.Program
	opts := a.sessionOptions()
	opts.OnStateChange = func(state rag.State, version uint64) {
		if p != nil {
			p.Send(tui.StateMsg{State: state, Version: version})
		}
	}
	session := a.newSession(opts)
	defer session.Close()

	p = tea.NewProgram(tui.New(session, opts.Query, initial, opts.CallTimeout), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
