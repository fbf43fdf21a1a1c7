package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notithing/internal/app"
	"notithing/internal/config"
	"notithing/internal/filter"
)

func main() {
	var (
		cfgPath    string
		debug      bool
		filterTest bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to config yaml/json (default: "+config.DefaultPath()+")")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.BoolVar(&filterTest, "filter-test", false, "test SUMMARY BODY against the filter file and exit")
	flag.Parse()

	if filterTest {
		if flag.NArg() != 2 {
			fmt.Fprintln(os.Stderr, "usage: notification-thing -filter-test SUMMARY BODY")
			os.Exit(2)
		}
		if err := runFilterTest(cfgPath, flag.Arg(0), flag.Arg(1)); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(run(cfgPath, debug))
}

func run(cfgPath string, debug bool) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{ConfigPath: cfgPath, Debug: debug})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		return 1
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = a.Reason()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && reason == app.StopFatalError {
		fmt.Fprintln(os.Stderr, "fatal:", err)
	}
	return reason.ExitCode()
}

func runFilterTest(cfgPath, summary, body string) error {
	path, optional := cfgPath, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	cfg, err := config.NewManager(path, optional).Parse()
	if err != nil {
		return err
	}
	rt, err := cfg.Resolve()
	if err != nil {
		return err
	}

	prog, err := filter.Load(rt.FilterFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("filter %s: %w", rt.FilterFile, err)
	}
	ok, err := filter.Eval(prog, summary, body)
	if err != nil {
		return fmt.Errorf("filter %s: %w", rt.FilterFile, err)
	}
	verdict := "won't pass"
	if ok {
		verdict = "will pass"
	}
	fmt.Printf("Message - summary: %q, body: %q\nFiltering result: %t (%s)\n", summary, body, ok, verdict)
	return nil
}
