package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "mizuki-device",
		Usage: "Local playlist library with cloud sync for MizukiPrism",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding the local store and session token",
				Value:   defaultDataDir(),
			},
			&cli.StringFlag{
				Name:  "api",
				Usage: "Base URL of the sync API",
				Value: "http://localhost:3001",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			playlistCommand(),
			syncCommand(),
			exportCommand(),
			importCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("mizuki-device: %v", err)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mizuki"
	}
	return filepath.Join(home, ".mizuki")
}
