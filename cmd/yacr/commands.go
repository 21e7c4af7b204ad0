package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/yacr/internal/driver"
	"github.com/frederic-klein/yacr/internal/graph"
	"github.com/frederic-klein/yacr/internal/options"
	"github.com/frederic-klein/yacr/internal/recipe"
)

func runRecipes(cmd *cobra.Command, args []string) error {
	s, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	renderRecipes(cmd.OutOrStdout(), s.registry)
	return nil
}

// reference parses a command argument; a bare name selects the newest
// version of the recipe.
func (s *session) reference(arg string) (recipe.Ref, error) {
	if strings.Contains(arg, "/") {
		return recipe.ParseRef(arg)
	}
	r, ok := s.registry.Get(arg)
	if !ok {
		return recipe.Ref{}, fmt.Errorf("%w for %s", driver.ErrNoRecipe, arg)
	}
	version := r.Latest()
	if version == "" {
		return recipe.Ref{}, fmt.Errorf("%w for %s", driver.ErrNoSource, arg)
	}
	return recipe.Ref{Name: arg, Version: version}, nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	s, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	ref, err := s.reference(args[0])
	if err != nil {
		return err
	}
	env, err := s.environment()
	if err != nil {
		return err
	}
	assignments, err := options.ParseAssignments(optionPairs)
	if err != nil {
		return err
	}

	_, res, err := s.driver.Resolve(ref, env, assignments.Requested(ref.Name))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s can be built for %s\n\n", ref, env)
	renderResolution(cmd.OutOrStdout(), res)
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	s, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	ref, err := s.reference(args[0])
	if err != nil {
		return err
	}
	env, err := s.environment()
	if err != nil {
		return err
	}
	assignments, err := options.ParseAssignments(optionPairs)
	if err != nil {
		return err
	}

	pkg, err := s.driver.Create(cmd.Context(), ref, env, assignments.Requested(ref.Name))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n%s\n", pkg.Ref, pkg.Info.PackageID, pkg.Folder)
	return nil
}

// roots returns the references given as arguments, or those of the
// requirements file together with its [options].
func roots(args []string) ([]recipe.Ref, options.Assignments, error) {
	var refs []recipe.Ref
	var assignments options.Assignments

	if len(args) == 0 {
		file, err := requirementsFile()
		if err != nil {
			return nil, assignments, err
		}
		refs = file.Requires
		assignments = file.Options
	} else {
		for _, arg := range args {
			ref, err := recipe.ParseRef(arg)
			if err != nil {
				return nil, assignments, err
			}
			refs = append(refs, ref)
		}
	}

	override, err := options.ParseAssignments(optionPairs)
	if err != nil {
		return nil, assignments, err
	}
	assignments = assignments.Override(override)

	if len(refs) == 0 {
		return nil, assignments, fmt.Errorf("no requirements given")
	}
	return refs, assignments, nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	refs, assignments, err := roots(args)
	if err != nil {
		return err
	}
	s, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	env, err := s.environment()
	if err != nil {
		return err
	}

	pkgs, err := s.driver.Install(cmd.Context(), refs, env, assignments)
	if err != nil {
		return err
	}
	renderPackages(cmd.OutOrStdout(), pkgs)
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	refs, _, err := roots(args)
	if err != nil {
		return err
	}
	s, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	g, err := graph.NewBuilder(s.registry, s.logger).Build(refs)
	if err != nil {
		return err
	}
	renderGraph(cmd.OutOrStdout(), g)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	ref, err := recipe.ParseRef(args[0])
	if err != nil {
		return err
	}
	s, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	pkgs, err := s.driver.List(ref)
	if err != nil {
		return err
	}
	if len(pkgs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No packages for %s\n", ref)
		return nil
	}
	renderPackageInfo(cmd.OutOrStdout(), pkgs)
	return nil
}
