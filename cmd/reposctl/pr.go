package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/pr"
	"github.com/sealbridge/sealrepos/internal/ui"
)

var (
	prHead  string
	prBase  string
	prTitle string
	prBody  string
)

var prCmd = &cobra.Command{
	Use:   "pr <repo>",
	Short: "Open a pull request for a conflicted branch",
	Long: `Open a pull request on the repository's personal remote.

This is the escalation path for a diverged repository whose rebase
conflicted: push the conflicted work to a branch by hand, then open a
pull request from it so the merge happens under review. Reviewers and
labels come from the configured PR policy. Authentication uses the
GITHUB_TOKEN environment variable.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		repo, ok := cfg.RepoByName(args[0])
		if !ok {
			fail(fmt.Errorf("%w: unknown repository %q", errdefs.ErrConfig, args[0]))
		}
		if !cfg.Defaults.PR.Enable {
			fail(fmt.Errorf("%w: pull-request escalation is disabled in policy.yaml",
				errdefs.ErrPolicyViolation))
		}

		slug, ok := pr.SlugFromRemote(repo.Personal)
		if !ok {
			fail(fmt.Errorf("%w: personal remote %q is not a GitHub URL",
				errdefs.ErrConfig, repo.Personal))
		}
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			fail(fmt.Errorf("%w: GITHUB_TOKEN is not set", errdefs.ErrConfig))
		}

		title := prTitle
		if title == "" {
			title = fmt.Sprintf("Sync conflict on %s needs manual merge", args[0])
		}

		ctx, cancel := signalContext()
		defer cancel()

		client := &pr.Client{Token: token}
		created, err := client.Create(ctx, pr.Request{
			RepoSlug:  slug,
			Head:      prHead,
			Base:      prBase,
			Title:     title,
			Body:      prBody,
			Reviewers: cfg.Defaults.PR.Reviewers,
			Labels:    cfg.Defaults.PR.Labels,
		})
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s opened #%d: %s\n", ui.RenderPass("✓"), created.Number, created.HTMLURL)
	},
}

func init() {
	prCmd.Flags().StringVar(&prHead, "head", "", "branch carrying the conflicted work (required)")
	prCmd.Flags().StringVar(&prBase, "base", "main", "branch the work should land on")
	prCmd.Flags().StringVar(&prTitle, "title", "", "pull request title")
	prCmd.Flags().StringVar(&prBody, "body", "Automated sync could not rebase cleanly; manual merge required.", "pull request body")
	prCmd.MarkFlagRequired("head")
	rootCmd.AddCommand(prCmd)
}
