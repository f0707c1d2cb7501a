package cli

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/host"
	"github.com/rileyhilliard/herd/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type serversFlags struct {
	SelectionFlags
	probe        bool
	probeTimeout time.Duration
	yaml         bool
}

func newServersCmd(app *App, g *globalFlags) *cobra.Command {
	f := &serversFlags{}
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Show the servers a selection resolves to",
		Long: `Resolve the selection flags against the inventory and print the result
without running anything. --probe also connects to each server.

Examples:
  herd servers -r web
  herd servers -s 'db[1-3]' --probe
  herd servers --yaml > inventory.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serversCommand(cmd, app, g, f)
		},
	}
	AddSelectionFlags(cmd, &f.SelectionFlags)
	cmd.Flags().BoolVar(&f.probe, "probe", false, "connect to each server and report latency")
	cmd.Flags().DurationVar(&f.probeTimeout, "probe-timeout", 10*time.Second, "connect timeout per server with --probe")
	cmd.Flags().BoolVar(&f.yaml, "yaml", false, "print the resolved servers as YAML")
	return cmd
}

func serversCommand(cmd *cobra.Command, app *App, g *globalFlags, f *serversFlags) error {
	s, err := openSession(cmd.Context(), app, g, cmd)
	if err != nil {
		return err
	}
	targets, err := s.targets(&f.SelectionFlags)
	if err != nil {
		return err
	}

	if f.yaml {
		list := make([]config.Server, len(targets))
		for i, t := range targets {
			list[i] = *t
		}
		out, err := yaml.Marshal(map[string]interface{}{"servers": list})
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't encode servers as YAML", "")
		}
		_, err = app.Stdout.Write(out)
		return err
	}

	if len(targets) == 0 {
		fmt.Fprintln(app.Stdout, "No servers matched.")
		return nil
	}

	var probes []host.ProbeResult
	if f.probe {
		probes = host.ProbeAll(cmd.Context(), app.Dialer, targets, f.probeTimeout, s.settings.MaxParallel)
	}

	st := ui.NewStyles(ui.NewRenderer(app.Stdout))
	headers := []string{"NAME", "ADDRESS", "USER", "PORT", "ROLES"}
	if f.probe {
		headers = append(headers, "PROBE")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.Muted).
		Headers(headers...)

	unreachable := 0
	for i, srv := range targets {
		row := []string{srv.Name, srv.Host(), srv.User, strconv.Itoa(srv.Port), strings.Join(srv.Roles, ",")}
		if f.probe {
			row = append(row, probeCell(probes[i]))
			if !probes[i].Success {
				unreachable++
			}
		}
		t.Row(row...)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		style := lipgloss.NewStyle().Padding(0, 1)
		if row == table.HeaderRow {
			return style.Bold(true)
		}
		if f.probe && col == len(headers)-1 && row >= 0 && row < len(probes) {
			if probes[row].Success {
				return style.Inherit(st.Success)
			}
			return style.Inherit(st.Error)
		}
		return style
	})

	fmt.Fprintln(app.Stdout, t.Render())
	fmt.Fprintf(app.Stdout, "%d server(s)\n", len(targets))

	if unreachable > 0 {
		return errors.NewExitError(1)
	}
	return nil
}

func probeCell(r host.ProbeResult) string {
	if r.Success {
		return ui.SymbolSuccess + " " + r.Latency.Round(time.Millisecond).String()
	}
	var de *host.DialError
	if stderrors.As(r.Error, &de) {
		return ui.SymbolFail + " " + de.Reason.String()
	}
	return ui.SymbolFail + " error"
}
