package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"faceattend/internal/enrollment"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage enrolled users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.users.List(ctx)
		if err != nil {
			return err
		}
		return printUsers(cmd.OutOrStdout(), users, jsonOutput)
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove ID...",
	Short: "Remove enrolled users; their attendance records are kept",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return removeUsers(ctx, cmd.OutOrStdout(), a.users, args)
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd, usersRemoveCmd)
}

func removeUsers(ctx context.Context, w io.Writer, svc *enrollment.Service, ids []string) error {
	for _, id := range ids {
		if err := svc.Remove(ctx, id); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
		fmt.Fprintf(w, "removed %s\n", id)
	}
	return nil
}

type userRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func printUsers(w io.Writer, users []enrollment.User, asJSON bool) error {
	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow{ID: u.ID, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt.Format("2006-01-02 15:04")})
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "No users enrolled.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tENROLLED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Role, r.CreatedAt)
	}
	return tw.Flush()
}
