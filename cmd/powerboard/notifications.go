package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/powerboard/tui/internal/api"
	"github.com/powerboard/tui/internal/notify"
	"github.com/powerboard/tui/internal/theme"
	"github.com/powerboard/tui/internal/views/notifications"
	"github.com/spf13/cobra"
)

func newNotificationsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"n"},
		Short:   "List and acknowledge notifications",
	}

	var unreadOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Print the current notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, s *notify.Store) error {
				printNotifications(s.Snapshot(), unreadOnly)
				return nil
			})
		},
	}
	list.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "only show unread notifications")

	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid notification id %q", args[0])
			}
			return withStore(cmd.Context(), opts, func(ctx context.Context, s *notify.Store) error {
				if _, ok := s.Get(id); !ok {
					return fmt.Errorf("notification %d not found", id)
				}
				if err := s.MarkRead(ctx, id); err != nil {
					return err
				}
				fmt.Printf("%d unread\n", s.UnreadCount())
				return nil
			})
		},
	}

	readAll := &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, s *notify.Store) error {
				before := s.UnreadCount()
				if err := s.MarkAllRead(ctx); err != nil {
					return err
				}
				fmt.Printf("marked %d read\n", before)
				return nil
			})
		},
	}

	cmd.AddCommand(list, read, readAll)
	return cmd
}

// withStore loads the credential, fetches the list and hands a populated
// store to fn.
func withStore(ctx context.Context, opts *rootOptions, fn func(context.Context, *notify.Store) error) error {
	closeLog, err := opts.setupLogging(false, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	policy, err := notify.ParsePolicy(opts.cfg.Notifications.OnFailure)
	if err != nil {
		return err
	}
	cl, err := openClient(opts.cfg, opts.token)
	if err != nil {
		return err
	}
	defer cl.Close()
	if err := cl.load(ctx); err != nil {
		return err
	}

	s := notify.NewStore(api.New(opts.cfg.NotificationAPI, cl.token), notify.WithPolicy(policy))
	if err := s.FetchAll(ctx); err != nil {
		return err
	}
	return fn(ctx, s)
}

func printNotifications(items []notify.Notification, unreadOnly bool) {
	now := time.Now()
	rows := make([][]string, 0, len(items))
	for _, n := range items {
		if unreadOnly && n.Read {
			continue
		}
		status := "read"
		if !n.Read {
			status = "unread"
		}
		rows = append(rows, []string{
			strconv.FormatInt(n.ID, 10),
			status,
			notifications.Age(now, n.CreatedAt),
			n.Message,
		})
	}
	if len(rows) == 0 {
		fmt.Println(theme.StyleDimmed.Render("No notifications."))
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("ID", "STATUS", "AGE", "MESSAGE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.StyleHeader
			}
			if col == 1 && rows[row][1] == "unread" {
				return theme.StyleUnread
			}
			return lipgloss.NewStyle()
		})
	fmt.Fprintln(os.Stdout, t.Render())
}
