package main

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"faceattend/internal/enrollment"
	"faceattend/internal/frame"
)

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Recompute every user's descriptor from the stored reference image",
	Long: `Recompute descriptors after the embedding model changes. Each user's stored
reference image is sent to the face service again and the new descriptor
replaces the old one. Users whose image has no detectable face are reported
and left unchanged.`,
	Args: cobra.NoArgs,
	RunE: runReembed,
}

func init() {
	rootCmd.AddCommand(reembedCmd)
}

func runReembed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Connecting to face service...")
	if err := a.face.Load(ctx); err != nil {
		return fmt.Errorf("face service: %w", err)
	}

	users, err := a.users.List(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users enrolled.")
		return nil
	}

	bar := progressbar.NewOptions(len(users),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Re-embedding"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("users"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
	res := reembedAll(ctx, a.users, users, func() { _ = bar.Add(1) })
	_ = bar.Finish()

	fmt.Fprintf(cmd.OutOrStdout(), "\nUpdated %d of %d users\n", res.updated, len(users))
	for id, ferr := range res.failed {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", id, ferr)
	}
	if len(res.failed) > 0 {
		return fmt.Errorf("%d users not updated", len(res.failed))
	}
	return nil
}

type reembedResult struct {
	updated int
	failed  map[string]error
}

func reembedAll(ctx context.Context, svc *enrollment.Service, users []enrollment.User, step func()) reembedResult {
	res := reembedResult{failed: make(map[string]error)}
	for _, u := range users {
		if err := reembedOne(ctx, svc, u); err != nil {
			res.failed[u.ID] = err
		} else {
			res.updated++
		}
		step()
	}
	return res
}

func reembedOne(ctx context.Context, svc *enrollment.Service, u enrollment.User) error {
	if u.Image == "" {
		return fmt.Errorf("no reference image stored")
	}
	f, err := frame.ParseDataURI(u.Image)
	if err != nil {
		return err
	}
	_, err = svc.Reenroll(ctx, u.ID, f)
	return err
}
