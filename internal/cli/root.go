package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/entrypoint"
)

// NewRootCommand builds the campuslib command tree. Running it without a
// subcommand starts the HTTP server.
func NewRootCommand(version, commit string) *cobra.Command {
	var dbPath string

	loadConfig := func() *config.Config {
		cfg := config.NewConfig()
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		return cfg
	}

	root := &cobra.Command{
		Use:           "campuslib",
		Short:         "Campus library catalog, membership and lending server",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return entrypoint.Run(loadConfig(), version)
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the library database (overrides DATABASE_PATH)")

	root.AddCommand(
		newServeCommand(version, loadConfig),
		newCreateStudentCommand(loadConfig),
		newImportBooksCommand(loadConfig),
		newOverdueCommand(loadConfig),
	)
	return root
}

func newServeCommand(version string, loadConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return entrypoint.Run(loadConfig(), version)
		},
	}
}

// openApp is shared by the offline commands.
func openApp(loadConfig func() *config.Config) (*entrypoint.App, error) {
	return entrypoint.NewApp(loadConfig())
}
