package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"chatpilot/internal/shortener"
	"chatpilot/internal/store"

	"github.com/spf13/cobra"
)

// withShortener opens the link store for one command.
func withShortener(fn func(*shortener.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.NewSQLiteStore(cfg.Links.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(shortener.NewService(st, logger))
}

func shortenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shorten <url> <key>",
		Short: "Create or repoint a tracked link",
		Long:  "Stores <key> -> <url>. Repeating the command with the same arguments changes nothing; a new <url> replaces the old one and keeps the visit count.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShortener(func(svc *shortener.Service) error {
				r := svc.ShortenURL(cmd.Context(), args[0], args[1])
				if !r.IsOK() {
					return r.Err
				}
				fmt.Println(r.Message)
				return nil
			})
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <key>",
		Short: "Print a tracked link's target and count one visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShortener(func(svc *shortener.Service) error {
				target, err := svc.Resolve(cmd.Context(), args[0]).Unwrap()
				if err != nil {
					return err
				}
				fmt.Println(target)
				return nil
			})
		},
	}
}

func linksCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List tracked links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShortener(func(svc *shortener.Service) error {
				links, err := svc.List(cmd.Context(), limit).Unwrap()
				if err != nil {
					return err
				}
				if len(links) == 0 {
					fmt.Println("No tracked links.")
					return nil
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tVISITS\tCREATED\tTARGET")
				for _, l := range links {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", l.ID, l.VisitCount, l.CreatedAt.Local().Format("2006-01-02"), l.TargetURL)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of links to show")
	return cmd
}
