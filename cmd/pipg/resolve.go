package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bilusteknoloji/pipg/internal/config"
	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

func newResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Preview what 'pipg lock' would pin for this interpreter, without writing a lockfile",
		Args:  cobra.NoArgs,
		RunE:  runResolve,
	}

	cmd.Flags().String("project", "pyproject.toml", "Path to the project's pyproject.toml")
	cmd.Flags().String("python", "python3", "Python binary to use")
	cmd.Flags().String("target", "", "Target directory (default: auto-detect site-packages)")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")

	return cmd
}

// runResolve drives the same internal/pubgrub-backed Driver as 'lock', but
// as Specific to the detected interpreter rather than Universal: it answers
// "what would resolve right now", the single-environment preview 'install'
// never surfaces since it never fully commits via internal/pubgrub, it
// builds a one-shot greedy BFS set instead.
func runResolve(cmd *cobra.Command, args []string) error {
	projectPath, _ := cmd.Flags().GetString("project")
	pythonBin, _ := cmd.Flags().GetString("python")
	targetDir, _ := cmd.Flags().GetString("target")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger := newLogger(verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	file, err := config.Load(projectPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", projectPath, err)
	}

	if err := file.CheckCompatible(version); err != nil {
		return err
	}

	requirements := file.Project.Requirements()
	if len(requirements) == 0 {
		return fmt.Errorf("%s declares no [project] dependencies", projectPath)
	}

	roots := make([]resolver.Requirement, len(requirements))
	for i, r := range requirements {
		roots[i] = resolver.ParseRequirement(r)
	}

	env, err := detectEnv(ctx, pythonBin, targetDir, logger)
	if err != nil {
		return err
	}

	db, _, err := newDistDatabase()
	if err != nil {
		return fmt.Errorf("setting up distribution database: %w", err)
	}

	driver := resolver.NewDriver(db, resolver.WithDriverLogger(logger))

	specific := resolver.Specific{Marker: specificMarker(buildLockEnvironment(env))}

	graph, err := driver.Resolve(ctx, roots, specific)
	if err != nil {
		return fmt.Errorf("resolving: %w", err)
	}

	resolved := graph.Flatten(buildLockEnvironment(env))

	resolvedMap := make(map[string]resolver.ResolvedPackage, len(resolved))
	for _, pkg := range resolved {
		resolvedMap[pkg.Name] = pkg
	}

	rootNames := make([]string, 0, len(requirements))
	for _, r := range requirements {
		rootNames = append(rootNames, resolver.NormalizeName(resolver.ParseRequirement(r).Name))
	}

	printDependencyTree(rootNames, resolvedMap)

	fmt.Printf("\n%d packages would be installed.\n", len(resolved))

	return nil
}

// specificMarker conjoins env's fields into the marker a Specific
// resolve needs: the conjunction of comparisons that environment satisfies.
func specificMarker(env marker.Environment) marker.Marker {
	m := marker.Comparison(marker.KeyPythonVersion, marker.OpEqual, env.PythonVersion)

	if env.SysPlatform != "" {
		m = m.And(marker.Comparison(marker.KeySysPlatform, marker.OpEqual, env.SysPlatform))
	}

	if env.OSName != "" {
		m = m.And(marker.Comparison(marker.KeyOSName, marker.OpEqual, env.OSName))
	}

	return m
}
