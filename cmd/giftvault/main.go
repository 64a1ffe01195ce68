package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/giftvault-io/giftvault/internal/app"
	"github.com/giftvault-io/giftvault/internal/security"
	log "github.com/sirupsen/logrus"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: giftvault <command> [flags]

Commands:
  serve          run the inventory service
  migrate        run database migrations and exit
  keygen         print a fresh encryption keyring entry
  admin-create   create or reset an administrator account

Flags:
  -config path   configuration file (default config.yaml)
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "configuration file path")
	username := flags.String("username", "", "admin username (admin-create)")
	password := flags.String("password", "", "admin password (admin-create)")
	_ = flags.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		if err := app.RunServer(ctx, *configPath); err != nil {
			log.Fatalf("serve: %v", err)
		}
	case "migrate":
		if err := app.Migrate(ctx, *configPath); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Info("migrations applied")
	case "keygen":
		id, material, err := security.NewKeyEntry()
		if err != nil {
			log.Fatalf("keygen: %v", err)
		}
		fmt.Printf("encryption:\n  active-key: %q\n  keys:\n    %s: %q\n", id, id, material)
	case "admin-create":
		if *username == "" || *password == "" {
			log.Fatal("admin-create requires -username and -password")
		}
		if err := app.CreateAdmin(ctx, *configPath, *username, *password); err != nil {
			log.Fatalf("admin-create: %v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}
