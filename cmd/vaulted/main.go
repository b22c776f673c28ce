package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/d4rkfella/vaulted/cmd"
	"github.com/d4rkfella/vaulted/internal/config"
	"github.com/d4rkfella/vaulted/internal/logging"
)

var (
	// version is set during build time.
	version = "dev"
	// commit is set during build time.
	commit = "none"
)

func main() {
	logging.Init(os.Getenv("LOG_LEVEL"))
	setupSystemResources()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := cmd.ExitGeneric
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("stack", string(debug.Stack())).
				Msgf("Unexpected panic: %v", r)
			exitCode = cmd.ExitGeneric
		}
		log.Debug().Int("exit_code", exitCode).Msg("Application exiting")
		stop()
		os.Exit(exitCode)
	}()

	exitCode = cmd.Execute(ctx)
}

// setupSystemResources configures GOMEMLIMIT and GOMAXPROCS from the
// container limits.
func setupSystemResources() {
	ratio := 0.85
	if p, err := config.NewProvider(""); err == nil {
		if r := p.GetFloat64(config.KeyMemoryRatio); r > 0 && r <= 1 {
			ratio = r
		}
	}

	if _, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(ratio),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroupHybrid, memlimit.FromSystem)),
	); err != nil {
		log.Debug().Err(err).Msg("Failed to set GOMEMLIMIT automatically")
	} else {
		log.Debug().Float64("ratio", ratio).Msg("Automatic GOMEMLIMIT activated")
	}

	if _, err := maxprocs.Set(
		maxprocs.Logger(func(s string, i ...interface{}) { log.Debug().Msgf(s, i...) }),
	); err != nil {
		log.Debug().Err(err).Msg("Failed to set GOMAXPROCS automatically")
	}
	log.Debug().Str("component", "system").Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("System resources configured")
	log.Debug().Str("component", "system").Str("version", version).Str("commit", commit).Msg("Application starting")
}
