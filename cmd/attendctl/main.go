// Command attendctl records class attendance against the attendance API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/classroll/attendance/internal/apiclient"
	"github.com/classroll/attendance/internal/apierr"
	"github.com/classroll/attendance/internal/attendance"
	"github.com/classroll/attendance/internal/config"
	"github.com/classroll/attendance/internal/credential"
	"github.com/classroll/attendance/internal/logging"
	"github.com/classroll/attendance/internal/store"
)

func main() {
	if err := run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", apierr.Describe(err).Text)
		}
		os.Exit(1)
	}
}

// run executes one command; main exits only after its defers have run.
func run(args []string) error {
	cfg := config.Load()
	log := zap.NewNop()
	if os.Getenv("ATTENDCTL_DEBUG") != "" {
		log = logging.Must(cfg.Env)
		defer func() { _ = log.Sync() }()
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	var creds credential.Store
	switch cfg.CredentialBackend {
	case "memory":
		creds = credential.NewMemoryStore()
	default:
		rdb := store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		creds = credential.NewRedisStore(rdb.Client, credentialKey())
	}

	client := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, creds, log)
	cli := commandLine{
		client: client,
		wf:     attendance.NewService(client, cfg.SaveConcurrency, log),
		out:    os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return cli.run(ctx, args)
}

// credentialKey scopes the stored login to the OS user.
func credentialKey() string {
	u := os.Getenv("USER")
	if u == "" {
		u = "default"
	}
	return "attendctl:credential:" + u
}
