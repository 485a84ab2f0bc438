// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/harmonymaker/internal/formatter"
	"github.com/urfave/cli/v3"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (" + strings.Join(formatter.Formats, ", ") + ")",
		Value:   string(formatter.FormatTable),
	}
}

// serveCommand runs the HTTP server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HarmonyMaker API and frontend server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the frontend in a browser once listening",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand prepares the database, storage buckets and config file
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize database, storage and configuration",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "storage",
				Usage:  "Create the audio buckets if they do not exist",
				Action: r.SetupStorage,
			},
			{
				Name:  "config",
				Usage: "Write a config file from the built-in template",
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

// migrateCommand manages schema migrations
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Database schema migrations",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply pending migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the latest migration",
				Action: r.MigrateRollback,
			},
			{
				Name:   "status",
				Usage:  "Show the current schema version",
				Action: r.MigrateStatus,
			},
		},
	}
}

// usersCommand handles account administration
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage user accounts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List active users",
				Flags: []cli.Flag{
					formatFlag(),
					&cli.StringFlag{
						Name:  "email",
						Usage: "Only show the user with this email",
					},
				},
				Action: r.UsersList,
			},
			{
				Name:  "create",
				Usage: "Create a password account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
					&cli.StringFlag{Name: "password", Required: true, Usage: "At least 6 characters"},
				},
				Action: r.UsersCreate,
			},
			{
				Name:      "delete",
				Usage:     "Deactivate a user",
				ArgsUsage: "<user-id>",
				Action:    r.UsersDelete,
			},
		},
	}
}

// audioCommand handles clips and saved pairs
func audioCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "audio",
		Usage: "Harmonize clips and manage saved pairs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List a user's saved pairs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User ID", Required: true},
					formatFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the listing to a file instead of stdout",
					},
				},
				Action: r.AudioList,
			},
			{
				Name:      "transform",
				Usage:     "Send a local clip through the ML service without saving it",
				ArgsUsage: "<input>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (defaults to transformed_<input>.wav)",
					},
				},
				Action: r.AudioTransform,
			},
			{
				Name:      "harmonize",
				Usage:     "Upload, transform and save a local clip for a user",
				ArgsUsage: "<input>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User ID", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "Output the result as JSON"},
				},
				Action: r.AudioHarmonize,
			},
			{
				Name:      "delete",
				Usage:     "Delete a saved pair and its objects",
				ArgsUsage: "<original-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User ID", Required: true},
				},
				Action: r.AudioDelete,
			},
		},
	}
}
