package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/sheetloader/internal/cli"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/entities"
	"github.com/mrlokans/sheetloader/internal/entrypoint"
	"github.com/mrlokans/sheetloader/internal/logging"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

type command interface {
	ParseFlags(args []string) error
	Run() error
}

func main() {
	cfg := config.NewConfig()

	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		entrypoint.Run(cfg, Version)
		return
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "import":
		run(cfg, cli.NewImportCommand(), args)
	case "export":
		run(cfg, cli.NewExportCommand(), args)
	case "sample":
		run(cfg, cli.NewSampleCommand(), args)
	case "token":
		run(cfg, cli.NewTokenCommand(), args)

	case "version":
		fmt.Printf("sheetloader %s (%s)\n", Version, Commit)

	case "-h", "--help", "help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func run(cfg *config.Config, cmd command, args []string) {
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfg.Auth.BcryptCost > 0 {
		entities.PasswordCost = cfg.Auth.BcryptCost
	}

	if err := cmd.ParseFlags(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the HTTP server (default if no command given)\n")
	fmt.Fprintf(os.Stderr, "  import    Import a CSV or XLSX file into a class\n")
	fmt.Fprintf(os.Stderr, "  export    Export the records of a class to a spreadsheet\n")
	fmt.Fprintf(os.Stderr, "  sample    Write an import template for a class\n")
	fmt.Fprintf(os.Stderr, "  token     Generate an API token for the HTTP server\n")
	fmt.Fprintf(os.Stderr, "  version   Print the version\n")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
