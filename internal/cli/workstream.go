package cli

import (
	"fmt"
	"strings"

	"github.com/gooseflow/coordinator/internal/config"
	"github.com/gooseflow/coordinator/internal/daemon"
	"github.com/gooseflow/coordinator/pkg/client"
	"github.com/spf13/cobra"
)

// resolveClient builds an SDK client against the running daemon: addr
// overrides everything, otherwise the daemon's recorded listen address is
// read from home, falling back to the default port.
func resolveClient(cmd *cobra.Command, addr, apiKey string) (*client.Client, error) {
	if addr == "" {
		home := config.MustHomeFrom(cmd.Context())
		st, err := daemon.Status(cmd.Context(), home)
		if err == nil && st.Running && st.Addr != "" && st.Addr != "unknown" {
			addr = st.Addr
		} else {
			addr = "localhost:4173"
		}
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return client.New(addr, apiKey), nil
}

func newWorkstreamCmd() *cobra.Command {
	var addr, apiKey string

	cmd := &cobra.Command{
		Use:     "workstream",
		Aliases: []string{"ws"},
		Short:   "Manage workstreams on a running daemon",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "Daemon address (default: read from daemon state, else localhost:4173)")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key, if the daemon requires one")

	cmd.AddCommand(newWorkstreamCreateCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamListCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamShowCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamMessageCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamPauseCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamResumeCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamStopCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamDiffCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamCommitCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamReviewCmd(&addr, &apiKey))
	cmd.AddCommand(newWorkstreamPermissionCmd(&addr, &apiKey))
	return cmd
}

func newWorkstreamCreateCmd(addr, apiKey *string) *cobra.Command {
	var name, task string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workstream and start its agent task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || task == "" {
				return fmt.Errorf("--name and --task are required")
			}
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			ws, err := c.CreateWorkstream(cmd.Context(), name, task)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created workstream %s (%s)\n", ws.ID, ws.State)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Workstream name")
	cmd.Flags().StringVar(&task, "task", "", "Task prompt given to the agent")
	return cmd
}

func newWorkstreamListCmd(addr, apiKey *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all workstreams",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			all, err := c.ListWorkstreams(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ws := range all {
				_, _ = fmt.Fprintf(out, "%s\t%-10s\t%s\t%s\n", ws.ID, ws.State, ws.Name, ws.BranchName)
			}
			return nil
		},
	}
	return cmd
}

func newWorkstreamShowCmd(addr, apiKey *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one workstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			ws, err := c.GetWorkstream(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "id:       %s\n", ws.ID)
			_, _ = fmt.Fprintf(out, "name:     %s\n", ws.Name)
			_, _ = fmt.Fprintf(out, "state:    %s\n", ws.State)
			_, _ = fmt.Fprintf(out, "branch:   %s\n", ws.BranchName)
			_, _ = fmt.Fprintf(out, "activity: %s\n", ws.Activity)
			for _, n := range ws.Notifications {
				_, _ = fmt.Fprintf(out, "  [%s] %s: %s\n", n.Kind, n.Title, n.Body)
			}
			return nil
		},
	}
	return cmd
}

func newWorkstreamMessageCmd(addr, apiKey *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message <id> <text>",
		Short: "Send a prompt to a workstream's agent session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			return c.SendMessage(cmd.Context(), args[0], args[1])
		},
	}
	return cmd
}

func newWorkstreamPauseCmd(addr, apiKey *string) *cobra.Command {
	return simpleWorkstreamAction("pause", "Pause a running workstream", addr, apiKey,
		func(c *client.Client) func(cmd *cobra.Command, id string) error {
			return func(cmd *cobra.Command, id string) error { return c.Pause(cmd.Context(), id) }
		})
}

func newWorkstreamResumeCmd(addr, apiKey *string) *cobra.Command {
	return simpleWorkstreamAction("resume", "Resume a paused workstream", addr, apiKey,
		func(c *client.Client) func(cmd *cobra.Command, id string) error {
			return func(cmd *cobra.Command, id string) error { return c.Resume(cmd.Context(), id) }
		})
}

func simpleWorkstreamAction(use, short string, addr, apiKey *string, withClient func(*client.Client) func(cmd *cobra.Command, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			return withClient(c)(cmd, args[0])
		},
	}
}

func newWorkstreamStopCmd(addr, apiKey *string) *cobra.Command {
	var cleanup bool
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a workstream's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			return c.Stop(cmd.Context(), args[0], cleanup)
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Also reclaim the workstream's worktree")
	return cmd
}

func newWorkstreamDiffCmd(addr, apiKey *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <id>",
		Short: "Show a workstream's uncommitted working-copy diff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			diff, err := c.Diff(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), diff)
			return nil
		},
	}
	return cmd
}

func newWorkstreamCommitCmd(addr, apiKey *string) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "commit <id>",
		Short: "Commit a workstream's working-copy changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("--message is required")
			}
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			committed, err := c.Commit(cmd.Context(), args[0], message)
			if err != nil {
				return err
			}
			if !committed {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing to commit")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Committed")
			return nil
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "Commit message")
	return cmd
}

func newWorkstreamReviewCmd(addr, apiKey *string) *cobra.Command {
	var request bool
	var approve bool
	var changesRequested bool
	var comment string

	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Request or submit a workstream review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			if request {
				return c.RequestReview(cmd.Context(), args[0])
			}
			switch {
			case approve && changesRequested:
				return fmt.Errorf("--approve and --changes-requested are mutually exclusive")
			case approve:
				return c.SubmitReview(cmd.Context(), args[0], "approved", comment)
			case changesRequested:
				return c.SubmitReview(cmd.Context(), args[0], "changes_requested", comment)
			default:
				return fmt.Errorf("one of --request, --approve, or --changes-requested is required")
			}
		},
	}
	cmd.Flags().BoolVar(&request, "request", false, "Move the workstream into the reviewing state")
	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the review, completing the workstream")
	cmd.Flags().BoolVar(&changesRequested, "changes-requested", false, "Send the workstream back with requested changes")
	cmd.Flags().StringVar(&comment, "comment", "", "Review comment")
	return cmd
}

func newWorkstreamPermissionCmd(addr, apiKey *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Inspect or respond to a workstream's pending permission request",
	}
	cmd.AddCommand(newWorkstreamPermissionShowCmd(addr, apiKey))
	cmd.AddCommand(newWorkstreamPermissionRespondCmd(addr, apiKey))
	return cmd
}

func newWorkstreamPermissionShowCmd(addr, apiKey *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a workstream's pending permission request, if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			p, err := c.PendingPermission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No pending permission")
				return nil
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "tool: %s\n", p.ToolTitle)
			for _, opt := range p.Options {
				_, _ = fmt.Fprintf(out, "  %s (%s)\n", opt.ID, opt.Kind)
			}
			return nil
		},
	}
	return cmd
}

func newWorkstreamPermissionRespondCmd(addr, apiKey *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond <id> <optionId>",
		Short: "Resolve a workstream's pending permission request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveClient(cmd, *addr, *apiKey)
			if err != nil {
				return err
			}
			return c.RespondToPermission(cmd.Context(), args[0], args[1])
		},
	}
	return cmd
}
