package main

import (
	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [feed-id-or-url]",
		Short: "Print the feed list, or one feed's articles, every time it changes",
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
				for range engine.WatchFeeds(ctx) {
					stats, err := engine.FeedStats(ctx)
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
					if err := f.OutputFeedList(stats); err != nil {
						return err
					}
				}
				return nil
			}

			feed, err := engine.ResolveFeed(ctx, args[0])
			if err != nil {
				return err
			}
			for articles := range engine.WatchArticles(ctx, feed.ID) {
				if err := f.OutputArticleList(articles); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
