package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"faceattend/internal/attendance"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Query attendance records",
}

var attendanceTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's check-ins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ledger.Today(ctx)
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), records, a.ledger.Location(), jsonOutput)
	},
}

var attendanceDateCmd = &cobra.Command{
	Use:   "date YYYY-MM-DD",
	Short: "Show check-ins for a calendar date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.ledger.ParseDate(args[0]); err != nil {
			return err
		}
		records, err := a.ledger.RecordsForDate(ctx, args[0])
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), records, a.ledger.Location(), jsonOutput)
	},
}

var attendanceUserCmd = &cobra.Command{
	Use:   "user ID",
	Short: "Show every check-in of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ledger.RecordsForUser(ctx, args[0])
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), records, a.ledger.Location(), jsonOutput)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary USER_ID",
	Short: "Show a user's presence over recent days",
	Long: `Show how many of the last N calendar days a user checked in, ending on
--as-of (default today).

Examples:
  attendctl summary 6f1c... --days 7
  attendctl summary 6f1c... --as-of 2024-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(attendanceCmd, summaryCmd)
	attendanceCmd.AddCommand(attendanceTodayCmd, attendanceDateCmd, attendanceUserCmd)

	summaryCmd.Flags().Int("days", 0, "Window size in days (default SUMMARY_DAYS)")
	summaryCmd.Flags().String("as-of", "", "Last day of the window, YYYY-MM-DD")
}

func runSummary(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	asOfFlag, _ := cmd.Flags().GetString("as-of")

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.users.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if days <= 0 {
		days = a.cfg.SummaryDays
	}
	asOf := time.Now()
	if asOfFlag != "" {
		if asOf, err = a.ledger.ParseDate(asOfFlag); err != nil {
			return err
		}
	}
	summary, err := a.ledger.Summarize(ctx, u.ID, days, asOf)
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), u.Name, summary, jsonOutput)
}

func printRecords(w io.Writer, records []attendance.Record, loc *time.Location, asJSON bool) error {
	if asJSON {
		if records == nil {
			records = []attendance.Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No attendance records.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTIME\tUSER\tUSER ID")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Date, r.CheckInTime.In(loc).Format("15:04"), r.UserName, r.UserID)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, name string, s attendance.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Fprintf(w, "%s: present %d of %d days (%d%%)\n", name, s.PresentDays, s.TotalDays, s.Percentage)
	var b strings.Builder
	for _, d := range s.History {
		if d.Status == attendance.Present {
			b.WriteByte('#')
		} else {
			b.WriteByte('.')
		}
	}
	if len(s.History) > 0 {
		fmt.Fprintf(w, "%s %s %s\n", s.History[0].Date, b.String(), s.History[len(s.History)-1].Date)
	}
	return nil
}
