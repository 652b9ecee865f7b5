// Command diagraph is the operator CLI for a running diagraph-d.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rmax-ai/diagraph/pkg/client"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const defaultAPI = "http://127.0.0.1:8090"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the resolved configuration shared by all subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "diagraph",
		Short: "Query and feed a diagraph-d investigation",
		Long: `diagraph talks to a running diagraph-d daemon. Collectors feed it entities,
relationships and issues; operators ask it for root causes and a fix plan.

Configuration is read from --config, $HOME/.diagraph/config.yaml and
DIAGRAPH_* environment variables, in that order of precedence after flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.diagraph/config.yaml)")
	root.PersistentFlags().String("api", defaultAPI, "diagraph-d base URL")
	root.PersistentFlags().StringP("output", "o", "table", "output format (table, json)")
	root.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout")
	a.v.BindPFlag("api", root.PersistentFlags().Lookup("api"))
	a.v.BindPFlag("output", root.PersistentFlags().Lookup("output"))
	a.v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))

	root.AddCommand(
		a.statusCmd(),
		a.runCmd(),
		a.entityCmd(),
		a.relateCmd(),
		a.edgesCmd(),
		a.issueCmd(),
		a.factsCmd(),
		a.incidentsCmd(),
		a.relatedCmd(),
		a.pathCmd(),
		a.summaryCmd(),
		a.dumpCmd(),
		a.rootCausesCmd(),
		a.fixPlanCmd(),
		a.reportCmd(),
		a.exportCmd(),
		a.replayCmd(),
		a.mcpCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(filepath.Join(home, ".diagraph"))
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("config")
	}

	a.v.SetEnvPrefix("DIAGRAPH")
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	switch a.output() {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", a.output())
	}
}

func (a *app) client() *client.Client {
	return client.NewClient(strings.TrimRight(a.v.GetString("api"), "/"))
}

func (a *app) output() string {
	return strings.ToLower(a.v.GetString("output"))
}

func (a *app) timeout() time.Duration {
	if d := a.v.GetDuration("timeout"); d > 0 {
		return d
	}
	return 30 * time.Second
}

// render writes v as JSON, or calls table for the human format.
func (a *app) render(w io.Writer, v any, tbl func() string) error {
	if a.output() == "json" || tbl == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, tbl())
	return err
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func renderTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return "(none)"
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// parseAttrs turns k=v pairs into loosely typed attributes. Integers,
// floats and booleans are recognised; everything else stays a string.
func parseAttrs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", p)
		}
		switch {
		case isInt(v):
			n, _ := strconv.ParseInt(v, 10, 64)
			out[k] = n
		case isFloat(v):
			f, _ := strconv.ParseFloat(v, 64)
			out[k] = f
		case v == "true" || v == "false":
			out[k] = v == "true"
		default:
			out[k] = v
		}
	}
	return out, nil
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
