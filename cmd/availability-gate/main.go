package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ccastromar/availability-gate/internal/app"
	"github.com/ccastromar/availability-gate/internal/config"
	"github.com/ccastromar/availability-gate/internal/logx"
)

// runner is the minimal interface our app must satisfy for running.
type runner interface{ Run(context.Context) error }

// appCtor is a constructor indirection to enable testing without launching the real app.
var appCtor = func(env *config.EnvVars) (runner, error) { return app.New(env) }

// loadConfig is swapped in tests.
var loadConfig = config.Load

// fatalf indirection allows testing fatal paths without exiting the test process.
var fatalf = log.Fatalf

func run(ctx context.Context) {
	env, err := loadConfig()
	if err != nil {
		fatalf("error loading config: %v", err)
		return
	}
	logx.SetLevel(env.LogLevel)

	a, err := appCtor(env)
	if err != nil {
		fatalf("error initializing app: %v", err)
		return
	}
	if err := a.Run(ctx); err != nil {
		fatalf("error running app: %v", err)
		return
	}
}

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	port := flag.String("port", "", "HTTP port to listen on (overrides PORT)")
	configFile := flag.String("config", "", "YAML gate config file (overrides GATE_CONFIG_FILE)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring %s: %v", *envFile, err)
	}
	if *port != "" {
		os.Setenv("PORT", *port)
	}
	if *configFile != "" {
		os.Setenv("GATE_CONFIG_FILE", *configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run(ctx)
}
