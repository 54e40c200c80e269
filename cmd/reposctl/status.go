package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/engine"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
	"github.com/sealbridge/sealrepos/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show divergence state for every configured repository",
	Long: `Fetch and classify every repository under management.

Each repository is reported as up-to-date, ahead, behind, or diverged
against its personal remote. nosync repositories are not listed. The
command only fetches; it never rebases or pushes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		git := gitwrap.New(cliLogger())
		ctx, cancel := signalContext()
		defer cancel()

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"REPO", "MODE", "DIRECTION", "BRANCH", "STATE", "NOTES"})
		for _, repo := range cfg.SyncRepos() {
			t.AppendRow(statusRow(ctx, git, repo, cfg.Defaults))
		}
		t.Render()
	},
}

func statusRow(ctx context.Context, git *gitwrap.Runner, repo config.Repo, defaults config.Defaults) table.Row {
	dir := repo.Path
	direction := repo.EffectiveDirection(defaults)

	clean, err := git.IsClean(ctx, dir)
	if err != nil {
		return table.Row{repo.Name, repo.Mode, direction, "-", ui.RenderFail("error"), err.Error()}
	}
	notes := ""
	if !clean {
		notes = "uncommitted changes"
	}

	if err := git.FetchAll(ctx, dir); err != nil {
		return table.Row{repo.Name, repo.Mode, direction, "-", ui.RenderFail("error"), err.Error()}
	}
	branch, err := git.CurrentBranch(ctx, dir)
	if err != nil {
		return table.Row{repo.Name, repo.Mode, direction, "-", ui.RenderFail("error"), err.Error()}
	}

	local, err := git.HeadSHA(ctx, dir, "HEAD")
	if err != nil {
		return table.Row{repo.Name, repo.Mode, direction, branch, ui.RenderFail("error"), err.Error()}
	}
	remote, err := git.HeadSHA(ctx, dir, "origin/"+branch)
	if err != nil {
		return table.Row{repo.Name, repo.Mode, direction, branch, ui.RenderMuted("no upstream"), notes}
	}
	base, err := git.MergeBase(ctx, dir, local, remote)
	if err != nil {
		return table.Row{repo.Name, repo.Mode, direction, branch, ui.RenderFail("error"), err.Error()}
	}

	state := engine.Classify(local, remote, base)
	return table.Row{repo.Name, repo.Mode, direction, branch, renderState(state), notes}
}

func renderState(s engine.State) string {
	switch s {
	case engine.UpToDate:
		return ui.RenderPass(s.String())
	case engine.Diverged:
		return ui.RenderWarn(s.String())
	default:
		return ui.RenderAccent(s.String())
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
