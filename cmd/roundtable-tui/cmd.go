package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"roundtable/internal/directory"
	"roundtable/internal/mylog"
	"roundtable/internal/playback"
)

func newCmd() *cobra.Command {
	kvargs := &struct {
		server   string
		table    string
		list     bool
		logFile  string
		logLevel string
	}{}

	cmd := &cobra.Command{
		Use:          "roundtable-tui",
		Short:        "Watch Faculty Club roundtables play out in the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := directory.Default()
			if err != nil {
				return errors.Wrap(err, "load table directory")
			}
			if kvargs.list {
				return printDirectory(cmd.OutOrStdout(), dir)
			}

			logger := mylog.Discard()
			if kvargs.logFile != "" {
				f, err := os.OpenFile(kvargs.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return errors.Wrapf(err, "open log file %s", kvargs.logFile)
				}
				defer f.Close()
				logger = mylog.New(f, kvargs.logLevel, "json")
			}

			slug := kvargs.table
			if slug == "" && len(args) > 0 {
				slug = args[0]
			}
			client := playback.NewHTTPClient(kvargs.server, &http.Client{})
			m := newModel(cmd.Context(), dir, client, playback.RealClock(), slug, logger)

			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return errors.Wrap(err, "run terminal client")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kvargs.server, "server", "http://localhost:4173", "Round server base URL")
	cmd.Flags().StringVarP(&kvargs.table, "table", "t", "", "Table id or number to open")
	cmd.Flags().BoolVar(&kvargs.list, "list", false, "List tables and exit")
	cmd.Flags().StringVar(&kvargs.logFile, "log-file", "", "Write client logs to this file")
	cmd.Flags().StringVar(&kvargs.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func printDirectory(w io.Writer, dir *directory.Directory) error {
	for _, t := range dir.Tables() {
		if _, err := fmt.Fprintf(w, "%s  %-40s  %-9s  %s\n",
			directory.FormatNumber(t.Number), t.Title, directory.SeatLabel(t), t.ID); err != nil {
			return err
		}
	}
	return nil
}
