package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/config"
	"github.com/bilusteknoloji/pipg/internal/distdb"
	"github.com/bilusteknoloji/pipg/internal/lockfile"
	"github.com/bilusteknoloji/pipg/internal/pypi"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

func newLockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Resolve a universal lockfile from pyproject.toml",
		Args:  cobra.NoArgs,
		RunE:  runLock,
	}

	cmd.Flags().String("project", "pyproject.toml", "Path to the project's pyproject.toml")
	cmd.Flags().String("output", "pipg.lock", "Path to write the lockfile")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")

	return cmd
}

func runLock(cmd *cobra.Command, args []string) error {
	projectPath, _ := cmd.Flags().GetString("project")
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

	db, _, err := newDistDatabase()
	if err != nil {
		return fmt.Errorf("setting up distribution database: %w", err)
	}

	env := resolver.Universal{}

	if existing, err := lockfile.Load(outputPath); err == nil {
		forks, err := lockfile.InitialForks(existing)
		if err != nil {
			return fmt.Errorf("reading existing lockfile's fork partition: %w", err)
		}

		env.InitialForks = forks

		logger.Debug("seeding resolve from existing lockfile",
			slog.String("path", outputPath), slog.Int("forks", len(forks)))
	}

	driver := resolver.NewDriver(db, resolver.WithDriverLogger(logger))

	fmt.Println("Resolving universal lock...")

	graph, err := driver.Resolve(ctx, roots, env)
	if err != nil {
		return fmt.Errorf("resolving: %w", err)
	}

	lock := lockfile.Build(graph, version, file.Project.RequiresPython)

	if err := lock.Write(outputPath); err != nil {
		return err
	}

	forkCount := len(graph.Forks)
	if forkCount == 0 {
		forkCount = 1
	}

	fmt.Printf("Locked %d packages across %d fork(s) -> %s\n", len(lock.Packages), forkCount, outputPath)

	return nil
}

// newDistDatabase builds the resolver's distribution database backend: a
// PyPI Simple API client fronting a multi-bucket on-disk cache. It also
// returns the cache.Root backing the database; the current callers (lock,
// resolve, compile) discard it, and sync opens its own cache.Root.
func newDistDatabase() (*distdb.Service, *cache.Root, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	pypiClient := pypi.New(pypi.WithHTTPClient(httpClient))

	root, err := cache.NewRoot()
	if err != nil {
		return nil, nil, err
	}

	return distdb.New(pypiClient, pypiClient, root), root, nil
}
