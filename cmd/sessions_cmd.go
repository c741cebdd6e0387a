package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/localcoder/internal/config"
	"github.com/nextlevelbuilder/localcoder/internal/sessions"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "View and manage chat sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	cmd.AddCommand(sessionsResetCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Run: func(cmd *cobra.Command, args []string) {
			store := openSessionsStore()
			defer store.Close()

			infos, err := store.List(context.Background(), limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			printSessionInfos(infos, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many sessions (0: all)")
	return cmd
}

func sessionsShowCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a session's messages",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openSessionsStore()
			defer store.Close()

			ctx := context.Background()
			sess, err := loadSession(ctx, store, args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(sess, "", "  ")
				fmt.Println(string(data))
				return
			}

			r := newRenderer()
			fmt.Printf("Session %s (%d turns, updated %s)\n", sess.ID, sess.Turns(), sess.UpdatedAt.Format(time.DateTime))
			for _, m := range sess.Messages {
				fmt.Println(titleStyle.Render("\n" + m.Role + ":"))
				fmt.Println(r.markdown(m.Content))
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openSessionsStore()
			defer store.Close()

			ctx := context.Background()
			id, err := store.ResolveID(ctx, args[0])
			if err == nil {
				err = store.Delete(ctx, id)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Deleted session: %s\n", id)
		},
	}
}

func sessionsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [id]",
		Short: "Clear session history (keep session)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openSessionsStore()
			defer store.Close()

			ctx := context.Background()
			id, err := store.ResolveID(ctx, args[0])
			if err == nil {
				err = store.Reset(ctx, id)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Reset session: %s\n", id)
		},
	}
}

func loadSession(ctx context.Context, store *sessions.Store, key string) (*sessions.Session, error) {
	id, err := store.ResolveID(ctx, key)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx, id)
}

func printSessionInfos(infos []sessions.Info, jsonOutput bool) {
	if jsonOutput {
		if infos == nil {
			infos = []sessions.Info{}
		}
		data, _ := json.MarshalIndent(infos, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(infos) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tTITLE\tMESSAGES\tCREATED\tUPDATED\n")
	for _, s := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			shortID(s.ID),
			truncateStr(s.Title, 40),
			s.Messages,
			s.CreatedAt.Format(time.DateTime),
			s.UpdatedAt.Format(time.DateTime),
		)
	}
	tw.Flush()
}

// openSessionsStore opens the configured store or exits.
func openSessionsStore() *sessions.Store {
	cfg, _ := loadConfig()
	store, err := sessions.Open(config.ExpandHome(cfg.Sessions.Storage), cfg.Sessions.MaxMessages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening sessions: %s\n", err)
		os.Exit(1)
	}
	return store
}

// shortID is the 8-character prefix shown in listings; ResolveID accepts it.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncateStr(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

