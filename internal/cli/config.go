package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/meanrev/config"
)

func newConfigCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate, validate or print configuration files",
		Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file
  show     - Print the effective configuration

Examples:
  meanrev config init -o meanrev.yaml
  meanrev config validate -f meanrev.yaml
  meanrev config show -c meanrev.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(cmd.OutOrStdout(), "\nEdit the file and run with:")
			fmt.Fprintf(cmd.OutOrStdout(), "  meanrev backtest -c %s --data <bars.csv>\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "meanrev.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(w, "  Account:    %s ($%.2f)\n", cfg.Account.ID, cfg.Sim.StartingBalance)
			fmt.Fprintf(w, "  Instrument: %s\n", cfg.Sim.Instrument.Symbol)
			fmt.Fprintf(w, "  Strategy:   %s (risk %.2f%%, floor %.2f)\n", cfg.Strategy.Name, cfg.Risk.RiskFraction*100, cfg.Scorer.Floor)
			fmt.Fprintf(w, "  Intervals:  %v (decide on %s)\n", cfg.Market.Intervals, cfg.Market.DecisionInterval)
			fmt.Fprintf(w, "  Journal:    %s\n", cfg.Journal.Type)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	validateCmd.MarkFlagRequired("file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(rc.Config); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(initCmd, validateCmd, showCmd)
	return cmd
}
