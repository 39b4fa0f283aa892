package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"twarchive/internal/cmdlog"
	"twarchive/internal/config"
	"twarchive/internal/jobs"
	"twarchive/internal/logging"
	"twarchive/internal/theme"
)

var (
	initPath       string
	importPath     string
	graphScreenArg string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmdlog.Run("init", func() error {
			if err := config.Save(initPath, config.Default()); err != nil {
				return err
			}
			abs, _ := filepath.Abs(initPath)
			theme.PrintBanner(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Config written to:", abs)
			return nil
		})
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Reconcile every enabled source into the timeline file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmdlog.Run("compile", func() error {
			e, err := setup(func(c *config.Config) {
				if importPath != "" {
					c.Sources.Import = importPath
				}
			}, config.Config.Validate)
			if err != nil {
				return err
			}
			defer e.Close()
			c := &jobs.Compiler{
				Fetcher:   e.fetcher,
				Config:    e.cfg,
				DB:        e.db,
				Requester: e.req,
				Log:       logging.Default(),
			}
			tl, err := c.Compile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tweets, %d users -> %s\n", tl.Len(), tl.CountUsers(), e.cfg.TimelineFile())
			return nil
		})
	},
}

var followersCmd = graphCommand("followers", "Archive the accounts following the user",
	func(ctx context.Context, g *jobs.Graph, screen string) (int, error) {
		users, err := g.Followers(ctx, screen)
		return len(users), err
	})

var followingCmd = graphCommand("following", "Archive the accounts the user follows",
	func(ctx context.Context, g *jobs.Graph, screen string) (int, error) {
		users, err := g.Following(ctx, screen)
		return len(users), err
	})

var listsCmd = graphCommand("lists", "Archive the user's lists and their members",
	func(ctx context.Context, g *jobs.Graph, screen string) (int, error) {
		lists, err := g.Lists(ctx, screen)
		return len(lists), err
	})

// graphCommand builds one of the graph archiving commands. Each run is
// recorded in the state database under its command name.
func graphCommand(name, short string, run func(context.Context, *jobs.Graph, string) (int, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmdlog.Run(name, func() error {
				e, err := setup(func(c *config.Config) {
					if graphScreenArg != "" {
						c.Account.ScreenName = graphScreenArg
					}
				}, config.Config.ValidateGraph)
				if err != nil {
					return err
				}
				defer e.Close()
				ctx := cmd.Context()
				g := &jobs.Graph{
					Fetcher:   e.fetcher,
					Options:   e.cfg.GraphOptions(),
					OutputDir: e.cfg.StorageOptions().OutputDir,
					Workers:   e.cfg.API.Workers,
					Log:       logging.Default(),
				}
				runID, err := e.db.StartRun(ctx, name, time.Now())
				if err != nil {
					return err
				}
				n, err := run(ctx, g, e.cfg.Account.ScreenName)
				if ferr := e.db.FinishRun(ctx, runID, time.Now(), 0, n, err); ferr != nil {
					logging.Log(logging.LevelWarning, "run not closed", map[string]any{"run": runID, "error": ferr.Error()})
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d archived to %s\n", name, n, g.OutputDir)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&graphScreenArg, "screen-name", "", "account to archive (defaults to account.screenName)")
	return cmd
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "./twarchive.yaml", "path to write config")
	compileCmd.Flags().StringVar(&importPath, "import", "", "previously compiled timeline to start from")
}
