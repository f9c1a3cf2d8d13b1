package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bytemomo/autopen/internal/adapter/logger"
	"bytemomo/autopen/internal/config"
	"bytemomo/autopen/internal/domain"
	"bytemomo/autopen/internal/usecase"

	"github.com/sirupsen/logrus"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: autopen <command> [flags]

Commands:
  run       aggregate targets, run the tool pipeline and merge findings
  status    show home directory and run lock state
  stop      remove a stale run lock
  version   print version information

Environment:
  AUTOPEN_HOME   working directory (default %s)
`, config.DefaultHome)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		os.Exit(runCmd(args))
	case "status":
		os.Exit(statusCmd(args))
	case "stop":
		os.Exit(stopCmd(args))
	case "version", "-version", "--version":
		fmt.Printf("autopen v%s (%s)\n", version, commit)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func homeFlag(fs *flag.FlagSet) *string {
	home := os.Getenv("AUTOPEN_HOME")
	if home == "" {
		home = config.DefaultHome
	}
	return fs.String("home", home, "autopen home directory")
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	home := homeFlag(fs)
	level := fs.String("log-level", "", "override the configured log level")
	_ = fs.Parse(args)

	logger.SetLoggerToStructured(logrus.InfoLevel, "")

	loader := config.NewLoader(*home)
	settings, err := loader.LoadSettings()
	if err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		return 1
	}
	if *level != "" {
		settings.Log.Level = *level
	}
	lvl := settings.LogLevel()
	logger.SetLoggerToStructured(lvl, "")

	log := logrus.WithField("home", *home)
	orch, err := usecase.NewOrchestrator(loader, settings, os.Stdout, log)
	if err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		return 1
	}
	orch.OpenRunLog = func(runDir string) func() {
		return logger.SetLoggerToStructured(lvl, filepath.Join(runDir, "autopen.log"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := orch.Run(ctx)
	if usecase.IsLocked(err) {
		fmt.Printf("[ERROR] %v. Use 'autopen stop' if it is stale.\n", err)
		return 1
	}
	if report != nil {
		printSummary(report)
	}
	if err != nil {
		log.WithError(err).Error("Run failed")
		return 1
	}
	return 0
}

func statusCmd(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	home := homeFlag(fs)
	_ = fs.Parse(args)

	st := usecase.Status(config.Paths{Home: *home})
	fmt.Printf("AUTOPEN_HOME=%s\n", st.Home)
	fmt.Printf("OUT_EXISTS=%t\n", st.OutExists)
	fmt.Printf("RUN_LOCK=%t\n", st.Locked)
	if st.Holder != nil {
		fmt.Printf("RUN_ID=%s PID=%d SINCE=%s\n", st.Holder.RunID, st.Holder.PID, st.Holder.CreatedAt)
	}
	return 0
}

func stopCmd(args []string) int {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	home := homeFlag(fs)
	_ = fs.Parse(args)

	path := config.Paths{Home: *home}.LockFile()
	existed, err := usecase.RemoveLock(path)
	switch {
	case err != nil:
		fmt.Printf("[ERROR] stop: %v\n", err)
		return 1
	case existed:
		fmt.Printf("[INFO] stop: removed lock file %s\n", path)
	default:
		fmt.Println("[INFO] stop: no lock file found (nothing to stop at CLI level).")
	}
	return 0
}

func printSummary(r *domain.RunReport) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Run ID:   %s\n", r.RunID)
	fmt.Printf("Status:   %s\n", r.Status)
	if r.EmptyReason != domain.EmptyNone {
		fmt.Printf("Reason:   %s\n", r.EmptyReason)
	}
	fmt.Printf("Run dir:  %s\n", r.RunDir)
	fmt.Printf("Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Aggregation != nil {
		fmt.Printf("Targets:  %d expanded, %d alive\n", len(r.Aggregation.Expanded), len(r.Aggregation.Alive))
	}
	if r.Status == domain.RunCompleted {
		fmt.Printf("Findings: %d (%s)\n", r.Findings, r.FindingsPath)
	}
	for _, se := range r.StepErrors {
		fmt.Printf("  - %s: %s\n", se.Step, se.Error)
	}
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
	fmt.Println(strings.Repeat("=", 60))
}
