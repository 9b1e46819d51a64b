// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/ebpf-sampler/internal/controller"
	"go.opentelemetry.io/ebpf-sampler/vc"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = controller.ExitParseError
)

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return parseError("Failure to parse arguments: %v", err)
	}

	if cfg.Version {
		fmt.Printf("%s\n", vc.Version())
		return exitSuccess
	}

	if cfg.VerboseMode {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		cfg.Dump()
	}

	if err = cfg.Validate(); err != nil {
		return parseError("Invalid configuration: %v", err)
	}

	// Context to drive main goroutine and the sampler.
	mainCtx, mainCancel := signal.NotifyContext(context.Background(),
		unix.SIGINT, unix.SIGTERM, unix.SIGABRT)
	defer mainCancel()

	log.Infof("Starting eBPF sampler %s (revision %s, build timestamp %s)",
		vc.Version(), vc.Revision(), vc.BuildTimestamp())

	ctlr := controller.New(cfg)
	defer ctlr.Shutdown()

	if err = ctlr.Start(mainCtx); err != nil {
		var exitErr controller.ErrorWithExitCode
		if errors.As(err, &exitErr) {
			log.Error(err)
			return exitCode(exitErr.Code())
		}
		return failure("Failed to start sampling: %v", err)
	}

	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, unix.SIGUSR1)
	defer signal.Stop(toggle)
	go func() {
		for {
			select {
			case <-toggle:
				ctlr.ToggleEnabled()
			case <-mainCtx.Done():
				return
			}
		}
	}()

	// Block until a signal indicates the program should terminate, or a component failed.
	if err = ctlr.Wait(); err != nil {
		return failure("Sampler stopped: %v", err)
	}

	log.Info("Exiting ...")
	return exitSuccess
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
