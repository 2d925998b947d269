package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ncecere/imagegen_gateway/internal/app"
	"github.com/ncecere/imagegen_gateway/internal/config"
	"github.com/ncecere/imagegen_gateway/internal/observability"
	"github.com/ncecere/imagegen_gateway/internal/providers"
)

type rootOptions struct {
	configFile    string
	envFile       string
	prompt        string
	listProviders bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "imagegen",
		Short: "Generate an image URL for a prompt using the configured provider chain",
		Long: `imagegen runs one generation through the same dispatcher as the gateway
and prints the result as JSON.

Examples:
  imagegen --prompt "a red fox in snow"
  imagegen --providers`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "Prompt to generate an image for")
	cmd.Flags().BoolVar(&opts.listProviders, "providers", false, "List the configured provider chain and exit")
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to the gateway config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file")
	return cmd
}

func run(ctx context.Context, stdout, stderr io.Writer, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !opts.listProviders && opts.prompt == "" {
		return errors.New("--prompt is required")
	}

	cfg, err := config.Load(config.Options{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg.Logging, stderr)

	// The CLI never serves /metrics.
	cfg.Observability.EnableMetrics = false
	container, err := app.NewContainer(ctx, cfg, nil, app.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer container.Shutdown(context.WithoutCancel(ctx))

	if opts.listProviders {
		return printProviders(stdout, container)
	}

	result, err := container.Dispatcher.Generate(ctx, opts.prompt)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func printProviders(w io.Writer, container *app.Container) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tFORMAT\tENDPOINT")
	for i, spec := range container.Chain {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, spec.Name, spec.Format, spec.Endpoint)
	}
	credential := "none (photo search only)"
	if container.Credential.Present() {
		credential = container.Credential.Source
	}
	fmt.Fprintf(tw, "\ncredential:\t%s\n", credential)
	for _, def := range providers.DefaultDefinitions() {
		fmt.Fprintf(tw, "format %s:\t%s\n", def.Name, def.Description)
	}
	return tw.Flush()
}
