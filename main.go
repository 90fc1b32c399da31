package main

import (
	"birthdaybot/bot"
	"birthdaybot/commands"
	"birthdaybot/config"
	"birthdaybot/dal"
	"birthdaybot/dates"
	"birthdaybot/discordutils"
	"birthdaybot/sheets"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	botToken   string
	guildID    string
	dbPath     string
}

// load reads the configuration and applies the command line overrides.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.botToken != "" {
		cfg.Discord.Token = o.botToken
	}
	if o.guildID != "" {
		cfg.Discord.GuildID = o.guildID
	}
	if o.dbPath != "" {
		cfg.Database.Driver = dal.DriverSQLite
		cfg.Database.DSN = o.dbPath
	}
	return cfg, nil
}

func (o *options) openStore() (*config.Config, *dal.Store, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	store, err := dal.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Table)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "birthdaybot",
		Short: "Discord bot that announces member birthdays",
		Long: "Tracks member birthdays, announces them every day and sends " +
			"DMs to members that opted in with a reaction.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML configuration file.")
	cmd.PersistentFlags().StringVar(&opts.botToken, "token", "", "Bot access token.")
	cmd.PersistentFlags().StringVar(&opts.guildID, "guild", "", "Guild ID the bot serves.")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "dbPath", "", "SQLite database file path. Overrides the configured database.")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newUpcomingCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newExportCommand(opts))

	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to discord and serve commands until interrupted",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := opts.load()
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				log.Fatalf("Invalid config: %v", err)
			}

			store, err := dal.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Table)
			if err != nil {
				log.Fatalf("Failed to connect to DB: %v", err)
			}
			defer store.Close()

			b, err := bot.New(cfg, store)
			if err != nil {
				log.Fatalf("Failed to start bot: %v", err)
			}
			defer b.Shutdown()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
		},
	}
}

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Announce today's birthdays once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := cfg.Validate(); err != nil {
				return err
			}

			session, err := bot.NewSession(cfg.Discord.Token)
			if err != nil {
				return err
			}
			client := discordutils.NewClient(session, cfg.Discord.GuildID)

			orchestrator, err := bot.NewOrchestrator(cfg, store, client, clockwork.NewRealClock())
			if err != nil {
				return err
			}

			report, err := orchestrator.Run(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(
				cmd.OutOrStdout(),
				"%v: %d birthday(s), %d DM(s) delivered, %d failed\n",
				report.Date.Format(dates.FullLayout),
				len(report.Announcements),
				report.Delivered(),
				report.Failed(),
			)
			return nil
		},
	}
}

func newUpcomingCommand(opts *options) *cobra.Command {
	limit := commands.UpcomingLimit

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List the next birthdays from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			today := dates.Today(clockwork.NewRealClock(), loc)

			upcoming, err := store.Upcoming(cmd.Context(), today, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), commands.FormatUpcoming(upcoming, today))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", limit, "Number of birthdays to list. 0 lists all.")
	return cmd
}

func newImportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import birthday records from a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			result, err := sheets.Import(cmd.Context(), file, store)
			if err != nil {
				return err
			}
			for _, message := range result.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d record(s), skipped %d.\n", len(result.Records), result.Skipped)
			return nil
		},
	}
}

func newExportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export all birthday records to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.All(cmd.Context())
			if err != nil {
				return err
			}

			file, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := sheets.Write(file, records); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d record(s) to %v.\n", len(records), args[0])
			return nil
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
