package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"routerwatch/internal/agent"
	"routerwatch/internal/api"
	"routerwatch/internal/config"
	"routerwatch/internal/rollover"
)

const usage = `usage: collector [command]

commands:
  run                     poll devices until interrupted (default)
  report [YYYY-MM]        resend the monthly report of every device (default previous month)
  rollover                flush the daily summary and send due monthly reports once
  token <subject> [ttl]   print an API token signed with API_JWT_SECRET (default ttl 24h)
  version                 print the collector version`

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "version":
		fmt.Println(config.Version)
		return
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if cmd == "token" {
		if err := printToken(cfg, args); err != nil {
			log.Fatalf("token: %v", err)
		}
		return
	}

	logger := agent.BuildLogger(cfg)
	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("collector initialization failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	switch cmd {
	case "run":
		err = a.Run(ctx)
	case "rollover":
		err = a.Rollover(ctx)
	case "report":
		var month string
		month, err = reportMonth(cfg, args)
		if err == nil {
			err = a.SendReport(ctx, month)
		}
	default:
		log.Fatalf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		logger.Error("collector "+cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func printToken(cfg config.Config, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("expected <subject> [ttl]\n%s", usage)
	}
	ttl := 24 * time.Hour
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("parse ttl: %w", err)
		}
		ttl = d
	}
	tok, err := api.IssueToken([]byte(cfg.APIJWTSecret), args[0], ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func reportMonth(cfg config.Config, args []string) (string, error) {
	switch len(args) {
	case 0:
		loc, err := cfg.Location()
		if err != nil {
			return "", err
		}
		return rollover.PreviousMonth(time.Now().In(loc)), nil
	case 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("expected at most one month\n%s", usage)
	}
}
