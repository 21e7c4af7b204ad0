package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/yacr/internal/requirements"
	"github.com/frederic-klein/yacr/internal/resolver"
)

var (
	configPath   string
	profilePath  string
	settingPairs []string
	optionPairs  []string
	requiresPath string
	verbose      bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var cfgErr *resolver.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "yacr",
		Short:         "Yet Another C++ Recipe builder",
		Long:          "YACR validates build configurations of C++ library recipes and builds them into a local package store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $HOME/.yacr/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	recipesCmd := &cobra.Command{
		Use:   "recipes",
		Short: "List the available recipes",
		Args:  cobra.NoArgs,
		RunE:  runRecipes,
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve <name[/version]>",
		Short: "Check a configuration and show the resolved options and toolchain parameters",
		Args:  cobra.ExactArgs(1),
		RunE:  runResolve,
	}

	createCmd := &cobra.Command{
		Use:   "create <name[/version]>",
		Short: "Build one package into the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}

	installCmd := &cobra.Command{
		Use:   "install [name/version...]",
		Short: "Build the requirements and their dependencies into the store",
		Long:  "Builds the given references, or the [requires] of the requirements file when none are given.",
		RunE:  runInstall,
	}
	installCmd.Flags().StringVarP(&requiresPath, "file", "f", "./"+requirements.FileName, "Requirements file")

	graphCmd := &cobra.Command{
		Use:   "graph [name/version...]",
		Short: "Show the dependency graph in build order",
		RunE:  runGraph,
	}
	graphCmd.Flags().StringVarP(&requiresPath, "file", "f", "./"+requirements.FileName, "Requirements file")

	infoCmd := &cobra.Command{
		Use:   "info <name/version>",
		Short: "Show the packages of a reference in the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}

	for _, cmd := range []*cobra.Command{resolveCmd, createCmd, installCmd, graphCmd} {
		cmd.Flags().StringVar(&profilePath, "profile", "", "Settings profile (YAML)")
		cmd.Flags().StringArrayVarP(&settingPairs, "setting", "s", nil, "Setting override, key=value")
		cmd.Flags().StringArrayVarP(&optionPairs, "option", "o", nil, "Option override, [name:]option=value")
	}

	rootCmd.AddCommand(recipesCmd, resolveCmd, createCmd, installCmd, graphCmd, infoCmd)
	return rootCmd
}
