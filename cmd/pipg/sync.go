package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/downloader"
	"github.com/bilusteknoloji/pipg/internal/installer"
	"github.com/bilusteknoloji/pipg/internal/lockfile"
	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/planner"
	"github.com/bilusteknoloji/pipg/internal/pypi"
	"github.com/bilusteknoloji/pipg/internal/python"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Install the package set a lockfile pins for this environment (extraneous packages are reported, not removed)",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}

	cmd.Flags().String("lockfile", "pipg.lock", "Path to the lockfile to sync from")
	cmd.Flags().String("python", "python3", "Python binary to use")
	cmd.Flags().String("target", "", "Target directory (default: auto-detect site-packages)")
	cmd.Flags().IntP("jobs", "j", 0, "Max concurrent downloads (default: GOMAXPROCS)")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	cmd.Flags().Bool("dry-run", false, "Show the plan without downloading or installing")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	start := time.Now()

	lockPath, _ := cmd.Flags().GetString("lockfile")
	pythonBin, _ := cmd.Flags().GetString("python")
	targetDir, _ := cmd.Flags().GetString("target")
	jobs, _ := cmd.Flags().GetInt("jobs")
	verbose, _ := cmd.Flags().GetBool("verbose")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	logger := newLogger(verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lock, err := lockfile.Load(lockPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", lockPath, err)
	}

	env, err := detectEnv(ctx, pythonBin, targetDir, logger)
	if err != nil {
		return err
	}

	resolved, err := lock.Flatten(buildLockEnvironment(env))
	if err != nil {
		return fmt.Errorf("evaluating lockfile markers: %w", err)
	}

	if len(resolved) == 0 {
		return fmt.Errorf("%s pins no packages for this environment", lockPath)
	}

	installed, err := installer.Snapshot(env.SitePackages)
	if err != nil {
		return err
	}

	cacheRoot, err := cache.NewRoot(cache.WithRootLogger(logger))
	if err != nil {
		return fmt.Errorf("setting up cache: %w", err)
	}

	plan, err := planner.New(
		planner.WithLogger(logger),
		planner.WithLocalIndex(planner.NewCacheLocalIndex(cacheRoot)),
	).Plan(resolved, installed, planner.Policy{})
	if err != nil {
		return fmt.Errorf("planning sync: %w", err)
	}

	printSyncPlan(plan)

	if dryRun {
		fmt.Println("\nDry run, no changes made.")

		return nil
	}

	var toInstall []downloader.Result

	if len(plan.Remote) > 0 {
		httpClient := &http.Client{Timeout: 30 * time.Second}
		pypiClient := pypi.New(pypi.WithHTTPClient(httpClient), pypi.WithLogger(logger))

		compatTags := buildCompatTags(env)

		dlPlans, serr := selectWheels(ctx, plan.Remote, pypiClient, compatTags, env)
		if serr != nil {
			return serr
		}

		downloaded, tmpDir, derr := syncDownload(ctx, dlPlans, jobs, httpClient, cacheRoot, logger)
		if derr != nil {
			return derr
		}
		defer func() { _ = os.RemoveAll(tmpDir) }()

		printDownloadResults(downloaded)

		toInstall = append(toInstall, downloaded...)
	}

	for _, stale := range plan.Reinstall {
		if err := installer.Uninstall(env.SitePackages, stale); err != nil {
			return fmt.Errorf("removing previous install of %s: %w", stale.Name, err)
		}
	}

	for _, local := range plan.Local {
		info, serr := os.Stat(local.Path)
		if serr != nil {
			return fmt.Errorf("stat %s: %w", local.Path, serr)
		}

		toInstall = append(toInstall, downloader.Result{
			Name:     local.Package.Name,
			Version:  local.Package.Version,
			FilePath: local.Path,
			Size:     info.Size(),
			Cached:   true,
		})
	}

	if len(toInstall) == 0 {
		fmt.Println("\nEnvironment already matches the lockfile; nothing to install.")

		return nil
	}

	fmt.Println("\nInstalling...")

	inst := installer.New(env, installer.WithLogger(logger))
	if err := inst.Install(ctx, toInstall); err != nil {
		return fmt.Errorf("installing packages: %w", err)
	}

	fmt.Printf("  ✓ %d packages installed\n", len(toInstall))
	fmt.Printf("\nDone in %.1fs\n", time.Since(start).Seconds())

	return nil
}

func printSyncPlan(plan *planner.Plan) {
	fmt.Printf("Plan: %d to download, %d from cache, %d to reinstall, %d already satisfied, %d extraneous\n",
		len(plan.Remote), len(plan.Local), len(plan.Reinstall), len(plan.NoOp), len(plan.Extraneous))

	for _, p := range plan.Extraneous {
		fmt.Printf("  - %s %s is installed but not in the lockfile (not removed; run manually if unwanted)\n", p.Name, p.Version)
	}
}

// buildLockEnvironment converts a detected Python environment into the
// marker.Environment a lockfile's PEP 508 markers are evaluated against,
// mirroring buildMarkerEnv's platform inference for resolver.MarkerEnv.
func buildLockEnvironment(env *python.Environment) marker.Environment {
	pyVer := resolver.FormatPythonVersion(env.PythonVersion)

	var sysPlatform, osName string

	switch {
	case strings.HasPrefix(env.PlatformTag, "macosx"):
		sysPlatform = "darwin"
		osName = "posix"
	case strings.HasPrefix(env.PlatformTag, "linux"):
		sysPlatform = "linux"
		osName = "posix"
	default:
		sysPlatform = "linux"
		osName = "posix"
	}

	return marker.Environment{
		PythonVersion: pyVer,
		SysPlatform:   sysPlatform,
		OSName:        osName,
	}
}

// syncDownload mirrors downloadPackages, but caches into cacheRoot's wheels
// bucket (the same bucket planner.NewCacheLocalIndex reads) rather than the
// teacher's single flat cache.Manager, so files downloaded this run feed
// the next sync's Local classification.
func syncDownload(ctx context.Context, plans []downloadPlan, jobs int, httpClient *http.Client, cacheRoot *cache.Root, logger *slog.Logger) ([]downloader.Result, string, error) {
	tmpDir, err := os.MkdirTemp("", "pipg-sync-*")
	if err != nil {
		return nil, "", fmt.Errorf("creating temp directory: %w", err)
	}

	requests := buildDownloadRequests(plans)

	workers := runtime.GOMAXPROCS(0)
	if jobs > 0 {
		workers = jobs
	}

	fmt.Printf("\nDownloading %d packages (%d workers)...\n", len(requests), workers)

	dlOpts := []downloader.Option{
		downloader.WithHTTPClient(httpClient),
		downloader.WithLogger(logger),
		downloader.WithCache(cacheRoot.Bucket(cache.BucketWheels)),
	}

	if jobs > 0 {
		dlOpts = append(dlOpts, downloader.WithMaxWorkers(jobs))
	}

	dlManager := downloader.New(tmpDir, dlOpts...)

	results, err := dlManager.Download(ctx, requests)
	if err != nil {
		_ = os.RemoveAll(tmpDir)

		return nil, "", fmt.Errorf("downloading packages: %w", err)
	}

	return results, tmpDir, nil
}
