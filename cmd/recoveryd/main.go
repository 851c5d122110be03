package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/MrEthical07/goRecover/internal/config"
	"github.com/MrEthical07/goRecover/internal/server"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:   "recoveryd",
		Usage:  "Self-service password recovery service",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			{
				Name:      "migrate",
				Usage:     "Apply or inspect database migrations",
				ArgsUsage: "[up|down|reset|status]",
				Flags:     config.DatabaseFlags(),
				Action:    server.Migrate,
			},
			{
				Name:   "gen-keys",
				Usage:  "Print a new seal key and token key pair",
				Action: server.GenKeys,
			},
			{
				Name:      "lock",
				Usage:     "Lock an employee's password",
				ArgsUsage: "<employee-id>",
				Flags:     config.DatabaseFlags(),
				Action:    server.SetLocked(true),
			},
			{
				Name:      "unlock",
				Usage:     "Unlock an employee's password",
				ArgsUsage: "<employee-id>",
				Flags:     config.DatabaseFlags(),
				Action:    server.SetLocked(false),
			},
			{
				Name:      "add-method",
				Usage:     "Register a verified MFA method",
				ArgsUsage: "<employee-id> <type> <value>",
				Flags:     config.DatabaseFlags(),
				Action:    server.AddMethod,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
