package cli

import (
	"errors"
	"fmt"

	"github.com/gooseflow/coordinator/internal/identity"
	"github.com/spf13/cobra"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect the git identity used to attribute commits the coordinator makes",
	}
	cmd.AddCommand(newIdentityDetectCmd())
	return cmd
}

func newIdentityDetectCmd() *cobra.Command {
	var repoDir string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect identity from git config",
		RunE: func(cmd *cobra.Command, args []string) error {
			h := identity.DetectFromGit(repoDir)
			if h.Name == "" && h.Email == "" {
				return errors.New("no git identity configured; run `git config --global user.name`/`user.email`")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", h.Name, h.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&repoDir, "repo", "", "Git repo path (default: current directory; git falls back to global config)")
	return cmd
}
