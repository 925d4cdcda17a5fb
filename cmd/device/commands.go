package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hydai/MizukiPrism-sub000/internal/device"
	"github.com/hydai/MizukiPrism-sub000/internal/playlist"
)

// env bundles the store, API client and library opened for one command.
type env struct {
	dir     string
	store   *device.LocalStore
	client  *device.Client
	library *device.Library
}

func openEnv(cmd *cli.Command) (*env, error) {
	dir := cmd.String("data-dir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := device.OpenLocalStore(filepath.Join(dir, "library.db"))
	if err != nil {
		return nil, err
	}
	client := device.NewClient(cmd.String("api"))
	if token, err := os.ReadFile(filepath.Join(dir, "token")); err == nil {
		client.SetToken(strings.TrimSpace(string(token)))
	}
	return &env{
		dir:     dir,
		store:   store,
		client:  client,
		library: device.NewLibrary(store, client),
	}, nil
}

func (e *env) close() { _ = e.store.Close() }

func (e *env) saveToken() error {
	return os.WriteFile(filepath.Join(e.dir, "token"), []byte(e.client.Token()), 0o600)
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Passwordless sign-in with an emailed code",
		Commands: []*cli.Command{
			{
				Name:  "request",
				Usage: "Request a sign-in code by email",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEnv(cmd)
					if err != nil {
						return err
					}
					defer e.close()
					if err := e.client.RequestCode(ctx, cmd.String("email")); err != nil {
						return err
					}
					fmt.Println("Code sent. Check your inbox, then run: login verify")
					return nil
				},
			},
			{
				Name:  "verify",
				Usage: "Verify the emailed code and reconcile playlists",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "code", Required: true},
					&cli.StringFlag{
						Name:  "on-conflict",
						Usage: "Merge decision when both sides have playlists: merge, cloud or local",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEnv(cmd)
					if err != nil {
						return err
					}
					defer e.close()

					rec := device.NewReconciler(e.store, e.client)
					prompt, err := rec.Login(ctx, cmd.String("email"), cmd.String("code"))
					if err != nil {
						return err
					}
					if err := e.saveToken(); err != nil {
						return err
					}

					if prompt == nil {
						fmt.Println("Signed in. Playlists are in sync.")
						return nil
					}

					choice := device.MergeChoice(cmd.String("on-conflict"))
					if choice == "" {
						return fmt.Errorf(
							"this device has %d playlists and the cloud has %d; rerun with --on-conflict merge|cloud|local",
							prompt.LocalCount, prompt.CloudCount)
					}
					if err := rec.Resolve(ctx, choice); err != nil {
						return err
					}
					fmt.Printf("Signed in. Resolved with %q.\n", choice)
					return nil
				},
			},
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "End the current session",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.client.Logout(ctx); err != nil {
				return err
			}
			return os.Remove(filepath.Join(e.dir, "token"))
		},
	}
}

func playlistCommand() *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Manage the local playlist library",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List local playlists",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEnv(cmd)
					if err != nil {
						return err
					}
					defer e.close()
					pls, err := e.store.Playlists()
					if err != nil {
						return err
					}
					for _, pl := range pls {
						fmt.Printf("%s  %-30s  %d versions\n", pl.ID, pl.Name, len(pl.Versions))
					}
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a playlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEnv(cmd)
					if err != nil {
						return err
					}
					defer e.close()
					pl, err := e.library.CreatePlaylist(ctx, cmd.String("name"))
					if err != nil {
						return err
					}
					fmt.Println(pl.ID)
					return nil
				},
			},
			{
				Name:  "rename",
				Usage: "Rename a playlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEnv(cmd)
					if err != nil {
						return err
					}
					defer e.close()
					_, err = e.library.Rename(ctx, cmd.String("id"), cmd.String("name"))
					return err
				},
			},
			{
				Name:  "add",
				Usage: "Add a performance to a playlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "performance", Required: true},
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "artist"},
					&cli.StringFlag{Name: "video", Required: true},
					&cli.IntFlag{Name: "start", Usage: "Start timestamp in seconds"},
					&cli.IntFlag{Name: "end", Usage: "End timestamp in seconds", Value: -1},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEnv(cmd)
					if err != nil {
						return err
					}
					defer e.close()
					v := playlist.Version{
						PerformanceID:  cmd.String("performance"),
						SongTitle:      cmd.String("title"),
						OriginalArtist: cmd.String("artist"),
						VideoID:        cmd.String("video"),
						Timestamp:      int(cmd.Int("start")),
					}
					if end := int(cmd.Int("end")); end >= 0 {
						v.EndTimestamp = &end
					}
					_, err = e.library.AddVersion(ctx, cmd.String("id"), v)
					return err
				},
			},
			{
				Name:  "remove",
				Usage: "Remove a performance from a playlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "performance", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEnv(cmd)
					if err != nil {
						return err
					}
					defer e.close()
					_, err = e.library.RemoveVersion(ctx, cmd.String("id"), cmd.String("performance"))
					return err
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a playlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					e, err := openEnv(cmd)
					if err != nil {
						return err
					}
					defer e.close()
					return e.library.DeletePlaylist(ctx, cmd.String("id"))
				},
			},
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Replay queued offline writes against the cloud",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			replayed, err := e.library.ReplayQueue(ctx)
			if err != nil {
				remaining, _ := e.store.PendingCount()
				return fmt.Errorf("replayed %d, %d still queued: %w", replayed, remaining, err)
			}
			fmt.Printf("Replayed %d queued writes.\n", replayed)
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the local library to a JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			data, err := e.store.Export()
			if err != nil {
				return err
			}
			return os.WriteFile(cmd.String("output"), data, 0o644)
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import playlists from an exported JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			data, err := os.ReadFile(cmd.String("input"))
			if err != nil {
				return err
			}
			n, err := e.store.Import(data)
			if err != nil {
				if errors.Is(err, device.ErrInvalidExport) {
					return fmt.Errorf("rejected: %w", err)
				}
				return err
			}
			fmt.Printf("Imported %d playlists.\n", n)
			return nil
		},
	}
}
