// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/desertthunder/qbx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// queryFlags are shared by every favorites and search command.
func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format (txt, json, csv, markdown)",
			Value:   "txt",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write the results to a file instead of stdout",
		},
		&cli.BoolFlag{
			Name:    "progress",
			Aliases: []string{"p"},
			Usage:   "Log status and progress while the query runs",
		},
	}
}

// setupCommand handles setup operations for the database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "rollback",
				Usage: "Roll back the most recent database migration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupRollback,
			},
			{
				Name:  "config",
				Usage: "Write a config file with the default settings",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path of the config file to create",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// favoritesCommand collects songs from the user's favorites.
func favoritesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "favorites",
		Aliases: []string{"fav"},
		Usage:   "Collect songs from your favorite artists, albums or songs",
		Commands: []*cli.Command{
			{
				Name:   "artists",
				Usage:  "Every song on every album of your favorite artists",
				Flags:  queryFlags(),
				Action: r.Favorites(tasks.QueryArtists),
			},
			{
				Name:   "albums",
				Usage:  "Every song on your favorite albums",
				Flags:  queryFlags(),
				Action: r.Favorites(tasks.QueryAlbums),
			},
			{
				Name:    "songs",
				Aliases: []string{"tracks"},
				Usage:   "Your favorite songs",
				Flags:   queryFlags(),
				Action:  r.Favorites(tasks.QuerySongs),
			},
			{
				Name:   "all",
				Usage:  "Run the three favorites queries at once (--output names a directory)",
				Flags:  queryFlags(),
				Action: r.FavoritesAll,
			},
		},
	}
}

// searchCommand collects songs for a catalog search.
func searchCommand(r *Runner) *cli.Command {
	sub := func(name, usage string, kind tasks.QueryKind) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: usage,
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "text"},
			},
			Flags:  queryFlags(),
			Action: r.Search(kind),
		}
	}

	return &cli.Command{
		Name:  "search",
		Usage: "Collect songs matching a catalog search",
		Commands: []*cli.Command{
			sub("artists", "Songs by the artists matching text", tasks.QuerySearchArtists),
			sub("albums", "Songs on the albums matching text", tasks.QuerySearchAlbums),
			sub("songs", "Songs matching text", tasks.QuerySearchSongs),
		},
	}
}

// cacheCommand inspects and trims the local song cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the songs cached from finished queries",
		Commands: []*cli.Command{
			{
				Name:  "songs",
				Usage: "Cached song operations",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List cached songs",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "album-id", Usage: "Only songs from this album"},
							&cli.StringFlag{Name: "artist-id", Usage: "Only songs by this artist"},
							&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Substring of title, artist or album"},
							&cli.IntFlag{Name: "limit", Usage: "Maximum number of songs to list", Value: 50},
							&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
						},
						Action: r.CacheSongsList,
					},
					{
						Name:  "purge",
						Usage: "Remove songs not seen by a query recently",
						Flags: []cli.Flag{
							&cli.DurationFlag{
								Name:  "older-than",
								Usage: "Purge songs last cached before this long ago",
								Value: 30 * 24 * time.Hour,
							},
						},
						Action: r.CacheSongsPurge,
					},
				},
			},
		},
	}
}

// runsCommand shows the query history.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Show recently run queries",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "Only runs of this query kind (e.g. albums, search_songs)"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of runs to show", Value: 20},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Runs,
	}
}

// tuiCommand returns the top-level TUI command for interactive queries.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI to run queries",
		Action:  r.TUI,
	}
}
