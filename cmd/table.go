package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type entryRow struct {
	name string
	role string
	kind string
	size int64
}

// entryTable lists archive members with a footer totalling their size.
func entryTable(rows []entryRow) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Entry", "Role", "Kind", "Size"})

	var total int64
	for _, r := range rows {
		tw.AppendRow(table.Row{r.name, r.role, r.kind, humanize.IBytes(uint64(r.size))})
		total += r.size
	}
	tw.AppendFooter(table.Row{humanize.Comma(int64(len(rows))) + " entries", "", "", humanize.IBytes(uint64(total))})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}
