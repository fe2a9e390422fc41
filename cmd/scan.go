package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"comiconv/internal/archive"
	"comiconv/internal/processor"
	"comiconv/internal/tui"
	"comiconv/pkg/imgutil"
)

var scanCmd = &cobra.Command{
	Use:   "scan <archive|dir>...",
	Short: "List archive entries and how they would be treated, without converting",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := processor.Discover(args, "")
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failed := 0
		for i, path := range files {
			if i > 0 {
				fmt.Fprintln(out)
			}
			if err := scanArchive(out, path); err != nil {
				failed++
				fmt.Fprintf(out, "%s %s\n", tui.ArchiveStyle.Render(path), tui.WarnStyle.Render(processor.ErrorKind(err)+": "+err.Error()))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d archives could not be read", failed, len(files))
		}
		return nil
	},
}

func scanArchive(out io.Writer, path string) error {
	a, err := archive.ReadFile(path)
	if err != nil {
		return err
	}
	processor.ClassifyAll(a.Entries)

	rows := make([]entryRow, 0, len(a.Entries))
	for _, e := range a.Entries {
		kind := "-"
		switch {
		case e.Dir:
			kind = "dir"
		case e.Link != "", e.Special != nil:
			kind = "link"
		case e.Role == archive.RoleImage:
			kind = imgutil.Detect(e.Data).String()
		}
		rows = append(rows, entryRow{name: e.Name, role: e.Role.String(), kind: kind, size: int64(len(e.Data))})
	}

	target := archive.TargetFormat(a.Format)
	fmt.Fprintf(out, "%s %s\n", tui.ArchiveStyle.Render(path),
		tui.MutedStyle.Render(fmt.Sprintf("%s -> %s, %d images, %s", a.Format, target, a.Images(), humanize.IBytes(uint64(a.Size())))))
	fmt.Fprintln(out, entryTable(rows))
	return nil
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
