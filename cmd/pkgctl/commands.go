package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
)

type installCall func(s *pkgservice.Service, ctx context.Context, repoURL, packageID string, target pkgservice.Target) (pkgservice.InstallStatus, error)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <package>",
		Short: "Show the install status of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstallCall(cmd, ctx, args[0], (*pkgservice.Service).Status)
		},
	}
}

func newUninstallCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <package>",
		Short: "Remove a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstallCall(cmd, ctx, args[0], (*pkgservice.Service).Uninstall)
		},
	}
}

func runInstallCall(cmd *cobra.Command, ctx *commandContext, packageID string, call installCall) error {
	target, err := ctx.targetValue()
	if err != nil {
		return err
	}
	return ctx.withService(cmd.Context(), func(svc *pkgservice.Service) error {
		status, err := call(svc, cmd.Context(), ctx.repo, packageID, target)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", packageID, status)
		return nil
	})
}

func newInstallCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "install <package>",
		Short: "Install a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			packageID := args[0]
			target, err := ctx.targetValue()
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(svc *pkgservice.Service) error {
				out := cmd.OutOrStdout()
				status, err := svc.Install(cmd.Context(), ctx.repo, packageID, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", packageID, status)
				if !wait || !status.Busy() {
					return nil
				}

				if err := followDownloads(cmd.Context(), out, svc, packageID); err != nil {
					return err
				}
				status, err = waitSettled(cmd.Context(), svc, ctx.repo, packageID, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", packageID, status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Follow the download and wait until the install settles")
	return cmd
}

// waitSettled polls until packageID is no longer installing or uninstalling.
func waitSettled(ctx context.Context, svc *pkgservice.Service, repoURL, packageID string, target pkgservice.Target) (pkgservice.InstallStatus, error) {
	ticker := time.NewTicker(settleInterval)
	defer ticker.Stop()
	for {
		status, err := svc.Status(ctx, repoURL, packageID, target)
		if err != nil || !status.Busy() {
			return status, err
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <package>",
		Short: "Follow download progress of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *pkgservice.Service) error {
				return followDownloads(cmd.Context(), cmd.OutOrStdout(), svc, args[0])
			})
		},
	}
}

func followDownloads(ctx context.Context, out io.Writer, svc *pkgservice.Service, packageID string) error {
	w, err := svc.WatchDownloads(ctx, packageID)
	if err != nil {
		return err
	}
	defer w.Close(context.Background())

	if len(w.IDs()) == 0 {
		fmt.Fprintf(out, "no downloads in flight for %s\n", packageID)
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-w.Progress():
			if !ok {
				return w.Err()
			}
			fmt.Fprintln(out, formatProgress(p))
		}
	}
}

func formatProgress(p pkgservice.DownloadProgress) string {
	return fmt.Sprintf("download %d: %3.0f%% (%s / %s)", p.ID, p.Fraction()*100, formatBytes(p.Current), formatBytes(p.Total))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func newRepoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repo",
		Short: "List the packages of a repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *pkgservice.Service) error {
				repo, err := svc.Repository(cmd.Context(), ctx.repo)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(repo.Packages))
				for _, p := range repo.Packages {
					reboot := ""
					if p.RebootRequired {
						reboot = "yes"
					}
					rows = append(rows, []string{p.ID, p.Name, p.Version, formatBytes(p.Size), reboot})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", repo.Name, repo.URL)
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Version", "Size", "Reboot"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newRepoStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repo-status",
		Short: "Show the install status of every package in a repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *pkgservice.Service) error {
				repo, err := svc.Repository(cmd.Context(), ctx.repo)
				if err != nil {
					return err
				}
				states, err := svc.RepositoryStatuses(cmd.Context(), ctx.repo)
				if err != nil {
					return err
				}
				var rows [][]string
				for _, id := range repo.PackageIDs() {
					latest, _ := repo.Latest(id)
					state := states[id]
					rows = append(rows, []string{id, string(state.Status), string(state.Target), state.Version, latest.Version})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Package", "Status", "Target", "Installed", "Latest"},
					rows, nil,
				))
				return nil
			})
		},
	}
}

func newUpdatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "updates",
		Short: "List installed packages with a newer version available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *pkgservice.Service) error {
				updates, err := svc.UpdatesAvailable(cmd.Context(), ctx.repo)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(updates) == 0 {
					fmt.Fprintln(out, "all packages are up to date")
					return nil
				}
				for _, p := range updates {
					fmt.Fprintf(out, "%s %s\n", p.ID, p.Version)
				}
				return nil
			})
		},
	}
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print service lifecycle events as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *pkgservice.Service) error {
				obs := svc.Client().ObserveLifecycle()
				defer obs.Close()

				out := cmd.OutOrStdout()
				for seen := 0; count <= 0 || seen < count; seen++ {
					select {
					case <-cmd.Context().Done():
						return nil
					case ev, ok := <-obs.Events():
						if !ok {
							return nil
						}
						fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339), ev)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 = until interrupted)")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd.Context(), func(svc *pkgservice.Service) error {
				h, err := svc.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (version %s, %d downloads in flight)\n", h.Status, h.Version, h.Downloads)
				return nil
			})
		},
	}
}
