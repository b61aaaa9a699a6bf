package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/haldane-labs/torrentrunner/internal/config"
	"github.com/haldane-labs/torrentrunner/internal/console"
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/facade"
	"github.com/haldane-labs/torrentrunner/pkg/realdebrid"
	"github.com/haldane-labs/torrentrunner/pkg/repair"
	"github.com/haldane-labs/torrentrunner/pkg/progress"
	"github.com/haldane-labs/torrentrunner/pkg/runner"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/haldane-labs/torrentrunner/pkg/worker/aria2worker"
	"github.com/haldane-labs/torrentrunner/pkg/worker/httpworker"
	"github.com/haldane-labs/torrentrunner/pkg/worker/symlinkworker"
	"github.com/haldane-labs/torrentrunner/pkg/worker/unpackworker"
)

const version = "1.0"

func main() {
	var (
		configPath string
		logLevel   string
		dryRun     bool
		showHelp   bool
		showVer    bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&configPath, "c", "", "Path to config file (shorthand)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, trace)")
	flag.BoolVar(&dryRun, "dry-run", false, "For repair: log what would happen without changing anything")
	flag.BoolVar(&showHelp, "help", false, "Show help")
	flag.BoolVar(&showHelp, "h", false, "Show help (shorthand)")
	flag.BoolVar(&showVer, "version", false, "Show version")
	flag.BoolVar(&showVer, "v", false, "Show version (shorthand)")

	flag.Parse()

	if showVer {
		fmt.Printf("torrentrunnerd v%s\n", version)
		os.Exit(0)
	}

	if showHelp || len(flag.Args()) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := strings.ToLower(flag.Arg(0))

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if logLevel != "" {
		logger.SetLogLevel(logLevel)
	} else if cfg.LogLevel != "" {
		logger.SetLogLevel(cfg.LogLevel)
	}
	logger.SetLogPath(cfg.CacheDir)
	config.SetInstance(cfg)

	log := logger.Default()
	printBanner()

	switch command {
	case "run":
		log.Info().Msg("Running a single tick...")
		runOnce(cfg)

	case "watch":
		log.Info().Int("intervalSeconds", cfg.TickIntervalSeconds).Msg("Starting watch mode...")
		runWatch(cfg)

	case "init":
		log.Info().Msg("Running crash-recovery sweep only...")
		runInit(cfg)

	case "repair":
		log.Info().Bool("dryRun", dryRun).Msg("Repairing errored torrents...")
		runRepair(cfg, dryRun)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// build wires the store, Real-Debrid client, facades, worker factories, and
// the reconciliation core for a single process lifetime. Every command
// shares this wiring; they differ only in how they drive Tick/Initializer.
type app struct {
	cfg      *config.Config
	store    *store.Store
	rd       *realdebrid.Client
	repair   *repair.Service
	torrents *facade.Torrents
	runner   *runner.Runner
}

func build(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	rd := realdebrid.New(cfg)
	rp := repair.New(rd, cfg)

	torrentsFacade := facade.NewTorrents(st, rd, rp, cfg)
	downloadsFacade := facade.NewDownloads(st)

	registry := runner.NewActiveWorkerRegistry()

	downloadPath := func(t *store.Torrent) string {
		if cat := strings.ToLower(t.Category); cat != "" {
			return filepath.Join(cfg.DownloadPath, cat)
		}
		return cfg.DownloadPath
	}

	var downloadFactory runner.DownloadWorkerFactory
	var bulkBackend runner.BulkStatusBackend

	switch cfg.DownloadBackend {
	case config.BackendAria2c:
		backend := aria2worker.NewBackend(cfg.Aria2RPCURL, cfg.Aria2RPCSecret)
		downloadFactory = aria2worker.NewFactory(backend, st)
		bulkBackend = backend
	case config.BackendSymlink:
		downloadFactory = symlinkworker.NewFactory(cfg.RcloneMountPath)
	default:
		downloadFactory = httpworker.NewFactory(st)
	}

	unpackFactory := unpackworker.NewFactory(downloadPath)

	poller := runner.NewAggregatedStatusPoller(bulkBackend, registry)
	sweeper := runner.NewCompletionSweeper(downloadsFacade, st, registry)
	starter := runner.NewWorkStarter(torrentsFacade, downloadsFacade, registry, downloadFactory, unpackFactory, cfg)
	reconciler := runner.NewTorrentReconciler(torrentsFacade, starter)
	reporter := progress.New(cfg.ProgressPushURL)

	rn := runner.New(cfg, torrentsFacade, downloadsFacade, registry, poller, sweeper, reconciler, reporter)

	return &app{cfg: cfg, store: st, rd: rd, repair: rp, torrents: torrentsFacade, runner: rn}, nil
}

func runInitializerSweep(st *store.Store) error {
	torrents, err := st.ListActive()
	if err != nil {
		return fmt.Errorf("loading torrents for init sweep: %w", err)
	}
	downloadsFacade := facade.NewDownloads(st)
	return runner.NewInitializer(downloadsFacade).Run(torrents)
}

func runOnce(cfg *config.Config) {
	a, err := build(cfg)
	if err != nil {
		logger.Default().Error().Err(err).Msg("failed to initialize")
		os.Exit(1)
	}
	if err := runInitializerSweep(a.store); err != nil {
		logger.Default().Error().Err(err).Msg("initializer sweep failed")
	}
	a.runner.Tick()
}

func runInit(cfg *config.Config) {
	a, err := build(cfg)
	if err != nil {
		logger.Default().Error().Err(err).Msg("failed to initialize")
		os.Exit(1)
	}
	if err := runInitializerSweep(a.store); err != nil {
		logger.Default().Error().Err(err).Msg("initializer sweep failed")
		os.Exit(1)
	}
}

func runWatch(cfg *config.Config) {
	a, err := build(cfg)
	if err != nil {
		logger.Default().Error().Err(err).Msg("failed to initialize")
		os.Exit(1)
	}
	if err := runInitializerSweep(a.store); err != nil {
		logger.Default().Error().Err(err).Msg("initializer sweep failed")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		logger.Default().Error().Err(err).Msg("failed to create scheduler")
		os.Exit(1)
	}

	interval := time.Duration(cfg.TickIntervalSeconds) * time.Second
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(a.runner.Tick),
	)
	if err != nil {
		logger.Default().Error().Err(err).Msg("failed to schedule tick job")
		os.Exit(1)
	}

	sched.Start()
	logger.Default().Info().Dur("interval", interval).Msg("watch mode running, ctrl-c to stop")

	select {}
}

// runRepair is an administrative command, run outside a tick: it scans
// torrents stuck terminal-with-error that carry a positive delete-on-error
// window and re-adds their magnets, reporting progress on the console.
// Errored torrents without such a window are not scanned.
func runRepair(cfg *config.Config, dryRun bool) {
	a, err := build(cfg)
	if err != nil {
		logger.Default().Error().Err(err).Msg("failed to initialize")
		os.Exit(1)
	}

	errored, err := a.store.ListErroredTerminal()
	if err != nil {
		logger.Default().Error().Err(err).Msg("failed to list errored torrents")
		os.Exit(1)
	}
	if len(errored) == 0 {
		fmt.Println("No errored torrents to repair.")
		return
	}

	targets := make([]repair.RepairTarget, 0, len(errored))
	for _, t := range errored {
		targets = append(targets, repair.RepairTarget{TorrentID: t.ID, Hash: t.Hash, Filename: t.Filename})
	}

	bar := console.NewProgressBar("Repairing", len(targets))
	results := a.repair.RepairAll(targets, dryRun, cfg.DownloadLimit, func(completed, total int) {
		bar.Update(completed)
	})

	var ok, failed int
	for _, err := range results {
		if err == nil {
			ok++
		} else {
			failed++
		}
	}
	fmt.Printf("Repaired %d, failed %d\n", ok, failed)
}

func printBanner() {
	banner := `
  ████████╗ ██████╗ ██████╗ ██████╗ ███████╗███╗   ██╗████████╗
  ╚══██╔══╝██╔═══██╗██╔══██╗██╔══██╗██╔════╝████╗  ██║╚══██╔══╝
     ██║   ██║   ██║██████╔╝██████╔╝█████╗  ██╔██╗ ██║   ██║
     ██║   ██║   ██║██╔══██╗██╔══██╗██╔══╝  ██║╚██╗██║   ██║
     ██║   ╚██████╔╝██║  ██║██║  ██║███████╗██║ ╚████║   ██║
     ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═══╝   ╚═╝
                                                    runnerd v` + version + `
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Printf(`torrentrunnerd v%s - Real-Debrid torrent lifecycle orchestrator

Usage: torrentrunnerd [options] <command>

Commands:
  run       Run a single reconciliation tick and exit
  watch     Run ticks continuously on the configured interval
  init      Run only the crash-recovery sweep
  repair    Re-submit magnets for errored torrents with a delete-on-error window

Options:
  -c, --config <path>    Path to config file
  --log-level <level>    Log level (debug, info, warn, error, trace)
  --dry-run              For repair: log without changing anything
  -v, --version          Show version
  -h, --help             Show this help
`, version)
}
