// Package cli implements ragctl, the operator command line for the report
// pipeline: index maintenance, guideline search, one-off generation and
// database migrations.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diabetes-report-mcp-server/internal/app"
	"github.com/diabetes-report-mcp-server/internal/config"
	"github.com/diabetes-report-mcp-server/internal/domain"
)

// ConfigLoader resolves the configuration for a --config path, which may be empty.
type ConfigLoader func(path string) (*domain.Config, error)

// Env carries the collaborators commands are built from.
type Env struct {
	LoadConfig ConfigLoader
	Options    []app.Option
}

// DefaultEnv loads configuration through viper.
func DefaultEnv() Env {
	return Env{LoadConfig: LoadConfig}
}

// LoadConfig reads and validates configuration from path or the default search path.
func LoadConfig(path string) (*domain.Config, error) {
	m, err := config.NewManagerFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return m.GetConfig(), nil
}

type runtime struct {
	env        Env
	configPath string
}

func (r *runtime) config() (*domain.Config, error) {
	return r.env.LoadConfig(r.configPath)
}

func (r *runtime) components(ctx context.Context, extra ...app.Option) (*app.Components, error) {
	cfg, err := r.config()
	if err != nil {
		return nil, err
	}
	opts := append(append([]app.Option{}, r.env.Options...), extra...)
	return app.New(ctx, cfg, opts...)
}

// NewRootCommand assembles the ragctl command tree.
func NewRootCommand(env Env) *cobra.Command {
	rt := &runtime{env: env}

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operate the diabetes report pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", "", "path to config file")

	root.AddCommand(
		newIndexCommand(rt),
		newSearchCommand(rt),
		newQueryCommand(rt),
		newRulesCommand(rt),
		newExtractCommand(rt),
		newGenerateCommand(rt),
		newAuditCommand(rt),
		newMigrateCommand(rt),
	)
	return root
}

// Execute runs the command tree against os.Args, printing results to stdout.
func Execute(ctx context.Context, env Env) error {
	root := NewRootCommand(env)
	root.SetOut(os.Stdout)
	return root.ExecuteContext(ctx)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
