package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bilusteknoloji/pipg/internal/config"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

func newCompileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Resolve [project] dependencies for this interpreter into a flat, pinned requirements file",
		Args:  cobra.NoArgs,
		RunE:  runCompile,
	}

	cmd.Flags().String("project", "pyproject.toml", "Path to the project's pyproject.toml")
	cmd.Flags().String("python", "python3", "Python binary to use")
	cmd.Flags().String("target", "", "Target directory (default: auto-detect site-packages)")
	cmd.Flags().String("output", "requirements.lock.txt", "Path to write the pinned requirements")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")

	return cmd
}

// runCompile is pip-compile's job, not uv lock's: a flat "name==version" pin
// list for exactly this interpreter/platform, the single-environment
// counterpart to the universal, multi-fork TOML 'lock' produces. It shares
// Specific resolution with 'resolve' rather than duplicating it.
func runCompile(cmd *cobra.Command, args []string) error {
	projectPath, _ := cmd.Flags().GetString("project")
	pythonBin, _ := cmd.Flags().GetString("python")
	targetDir, _ := cmd.Flags().GetString("target")
	outputPath, _ := cmd.Flags().GetString("output")
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

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Name < resolved[j].Name })

	var b strings.Builder

	b.WriteString("# generated by pipg compile; do not edit by hand\n")

	for _, pkg := range resolved {
		fmt.Fprintf(&b, "%s==%s\n", pkg.Name, pkg.Version)
	}

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}

	fmt.Printf("Compiled %d packages -> %s\n", len(resolved), outputPath)

	return nil
}
