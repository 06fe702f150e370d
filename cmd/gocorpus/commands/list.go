package commands

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
)

// NewListCommand creates the list command.
func NewListCommand(global *GlobalFlags) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List corpus repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setupEnv(cmd, global, envOptions{mode: observability.ModeCLI})
			if err != nil {
				return err
			}
			defer e.close()

			meta, err := e.loadMeta(cmd.Context())
			if err != nil {
				return err
			}

			repos := meta.Repositories
			if len(tags) > 0 {
				repos = meta.SelectTags(tags...)
			}

			renderRepositories(cmd, repos)

			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "only list repositories carrying any of these tags")

	return cmd
}

func renderRepositories(cmd *cobra.Command, repos []*corpus.Repository) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(cmd.OutOrStdout())
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	tbl.AppendHeader(table.Row{"Name", "Tags", "Files", "SLOC", "Minified"})

	var files, sloc, size int

	for _, repo := range repos {
		tbl.AppendRow(table.Row{
			repo.Name,
			strings.Join(repo.Tags, ","),
			humanize.Comma(int64(len(repo.Files))),
			humanize.Comma(int64(repo.SLOC)),
			humanize.Bytes(uint64(repo.MinifiedSize)), //nolint:gosec // sizes are non-negative.
		})

		files += len(repo.Files)
		sloc += repo.SLOC
		size += repo.MinifiedSize
	}

	tbl.AppendFooter(table.Row{
		humanize.Comma(int64(len(repos))) + " repositories", "",
		humanize.Comma(int64(files)),
		humanize.Comma(int64(sloc)),
		humanize.Bytes(uint64(size)), //nolint:gosec // sizes are non-negative.
	})

	tbl.Render()
}
