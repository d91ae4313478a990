package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matthewjhunter/newsie"
	"github.com/matthewjhunter/newsie/internal/config"
	"github.com/matthewjhunter/newsie/internal/feeds"
	"github.com/matthewjhunter/newsie/internal/output"
	"github.com/matthewjhunter/newsie/internal/storage"
)

var (
	configPath   string
	outputFormat string
	cfg          *config.Config
	logger       *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		output.NewFormatter(output.Format(outputFormat)).Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "newsie",
		Short:         "newsie - a local RSS/Atom feed reader",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !output.Format(outputFormat).Valid() {
				return fmt.Errorf("unknown output format %q", outputFormat)
			}
			return loadConfig(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(articlesCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(renameCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(initConfigCmd())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err = config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	return err
}

func formatter(cmd *cobra.Command) *output.Formatter {
	return output.NewFormatterWithWriters(output.Format(outputFormat), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// openEngine opens the configured database and wires the engine to it. The
// returned func closes the database.
func openEngine() (*newsie.Engine, func(), error) {
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	fetcher := feeds.NewFetcher(feeds.Options{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      cfg.Fetcher.Timeout,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
	})
	engine := newsie.New(store, fetcher, newsie.EngineConfig{
		Logger:  logger,
		Workers: cfg.Sync.Workers,
	})
	return engine, func() { store.Close() }, nil
}

func addCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Subscribe to a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			feed, err := engine.AddFeed(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			return formatter(cmd).OutputFeed(feed)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name for the feed")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscribed feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			stats, err := engine.FeedStats(cmd.Context())
			if err != nil {
				return err
			}
			return formatter(cmd).OutputFeedList(stats)
		},
	}
}

func articlesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "articles <feed-id-or-url>",
		Short: "List the stored articles of a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			feed, err := engine.ResolveFeed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			articles, err := engine.ListArticles(cmd.Context(), feed.ID)
			if err != nil {
				return err
			}
			return formatter(cmd).OutputArticleList(articles)
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <article-id>",
		Short: "Show a single article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			article, err := engine.GetArticle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return formatter(cmd).OutputArticle(article)
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [feed-id-or-url]",
		Short: "Fetch new articles for one feed, or for every feed when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := cmd.Context()
			f := formatter(cmd)
			if len(args) == 0 {
				summary, err := engine.RefreshAll(ctx)
				if summary == nil {
					return err
				}
				if err != nil {
					f.Warning("%v", err)
				}
				return f.OutputRefreshSummary(summary)
			}

			feed, err := engine.ResolveFeed(ctx, args[0])
			if err != nil {
				return err
			}
			articles, err := engine.RefreshFeed(ctx, feed.ID)
			if err != nil {
				return err
			}
			return f.OutputArticleList(articles)
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <feed-id-or-url>",
		Short: "Unsubscribe from a feed and delete its articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			feed, err := engine.ResolveFeed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := engine.DeleteFeed(cmd.Context(), feed.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", feed.DisplayName())
			return nil
		},
	}
}

func renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <feed-id-or-url> [name]",
		Short: "Set a feed's display name; omit the name to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			feed, err := engine.ResolveFeed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var name string
			if len(args) == 2 {
				name = args[1]
			}
			renamed, err := engine.RenameFeed(cmd.Context(), feed.ID, name)
			if err != nil {
				return err
			}
			return formatter(cmd).OutputFeed(renamed)
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <opml-file>",
		Short: "Import feeds from an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			result, err := engine.ImportOPML(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to import OPML: %w", err)
			}
			return formatter(cmd).OutputImportResult(result)
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [opml-file]",
		Short: "Export feeds as OPML to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			if len(args) == 0 {
				return engine.ExportOPML(cmd.Context(), cmd.OutOrStdout())
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			if err := engine.ExportOPML(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file (YAML, or TOML for a .toml path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultPath
			}

			// Create config directory
			dir := filepath.Dir(path)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			// Check if config already exists
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file already exists: %s", path)
			}

			data, err := config.Marshal(path, config.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created default config at %s\n", path)
			return nil
		},
	}
}
