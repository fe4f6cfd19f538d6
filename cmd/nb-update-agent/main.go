package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/aging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/config"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/logging"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/pkgsrc"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/run"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/secondary"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/selfupdate"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/svcctl"
	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/upgrade"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "0.0.0"

var (
	cfgFile  string
	noJitter bool
)

var rootCmd = &cobra.Command{
	Use:   "nb-update-agent",
	Short: "Staged-rollout update agent for the NetBird client",
	Long: `nb-update-agent keeps the NetBird client up to date, but only after a
newly published version has aged, unchanged, in the package feed for a
configured number of days. It is designed to be invoked periodically by
the OS scheduler and runs to completion on every invocation.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one update cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := runOnce()
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agent version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nb-update-agent v%s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted aging and secondary state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStatus()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config dir)")
	runCmd.Flags().BoolVar(&noJitter, "no-jitter", false, "skip the random start delay")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOnce() (int, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return 0, fmt.Errorf("load config: %w", err)
	}

	closeLog, err := initLogging(cfg)
	if err != nil {
		return 0, fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	runner := buildRunner(cfg)
	report := runner.Run(context.Background())

	logging.L("main").Info("run complete",
		"selfUpdate", string(report.SelfUpdate),
		"primaryChanged", report.PrimaryChanged,
		"exitCode", report.ExitCode,
	)
	return report.ExitCode, nil
}

func buildRunner(cfg *config.Config) *run.Runner {
	client := &http.Client{Timeout: 5 * time.Minute}
	source := pkgsrc.NewWingetSource(pkgsrc.CommandExec)

	runner := &run.Runner{
		PackageID:  cfg.PackageID,
		DelayDays:  cfg.DelayDays,
		Source:     source,
		AgingStore: aging.NewFileStore(cfg.AgingStatePath()),
		Executor: &upgrade.Executor{
			Source:      source,
			Service:     svcctl.New(),
			PackageID:   cfg.PackageID,
			ServiceName: cfg.ServiceName,
		},
		LockPath:  cfg.LockPath(),
		JitterMax: time.Duration(cfg.StartJitterSeconds) * time.Second,
	}

	if noJitter {
		runner.JitterMax = 0
	}

	if cfg.SelfUpdate.Enabled {
		runner.SelfUpdater = &selfupdate.Coordinator{
			LocalVersion: version,
			Registry:     &selfupdate.GitHubRegistry{Client: client, URL: cfg.SelfUpdate.ReleaseURL},
			Client:       client,
			Exec:         pkgsrc.CommandExec,
			SourceDir:    cfg.SelfUpdate.SourceDir,
			ArtifactURL:  cfg.SelfUpdate.ArtifactURL,
			BinaryPath:   cfg.SelfUpdate.BinaryPath,
		}
	}

	if cfg.Secondary.Enabled {
		runner.Secondary = &secondary.Coordinator{
			Name:          cfg.Secondary.Name,
			InstallerURL:  cfg.Secondary.InstallerURL,
			InstallerArgs: cfg.Secondary.InstallerArgs,
			UIProcessName: cfg.Secondary.UIProcessName,
			Client:        client,
			Exec:          pkgsrc.CommandExec,
			Store:         secondary.NewFileStore(cfg.SecondaryStatePath()),
			Clock:         func() time.Time { return time.Now().UTC() },
		}
	}

	return runner
}

func initLogging(cfg *config.Config) (func(), error) {
	if cfg.Logging.File == "" {
		logging.Init(cfg.Logging.Format, cfg.Logging.Level, nil)
		return func() {}, nil
	}

	writer, err := logging.NewRotatingWriter(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Logging.Format, cfg.Logging.Level, io.MultiWriter(os.Stdout, writer))

	if cfg.Logging.RetentionDays > 0 {
		retention := time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour
		if n, err := logging.PruneBackups(cfg.Logging.File, retention, time.Now()); err == nil && n > 0 {
			logging.L("main").Info("pruned old log backups", "removed", n)
		}
	}

	return func() { writer.Close() }, nil
}

func printStatus() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("Package:        %s (delay %d days)\n", cfg.PackageID, cfg.DelayDays)

	agingState, err := aging.NewFileStore(cfg.AgingStatePath()).Load()
	if err != nil || agingState == nil {
		fmt.Println("Aging state:    none (first sight pending)")
	} else {
		age := time.Since(agingState.FirstSeenUTC).Hours() / 24
		fmt.Printf("Candidate:      %s (first seen %s, %.1f days ago)\n",
			agingState.CandidateVersion,
			agingState.FirstSeenUTC.Format(time.RFC3339),
			age,
		)
		fmt.Printf("Last check:     %s\n", agingState.LastCheckUTC.Format(time.RFC3339))
	}

	secState, err := secondary.NewFileStore(cfg.SecondaryStatePath()).Load()
	if err != nil || secState == nil {
		fmt.Println("Secondary:      never installed")
	} else {
		fmt.Printf("Secondary:      %s (installed %s)\n",
			secState.LastInstalledVersion,
			secState.InstalledAtUTC.Format(time.RFC3339),
		)
	}

	return nil
}
