package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/dstet/pathsync/internal/cache"
	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/ui"
	"github.com/dstet/pathsync/internal/util"
	"github.com/dstet/pathsync/internal/validation"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a syncfile without syncing",
		UsageText: "pathsync validate <syncfile>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("validate requires exactly 1 argument: <syncfile>")
			}
			w := cmd.Root().Writer

			doc, err := config.Load(cmd.Args().First())
			if err != nil {
				return err
			}

			report := validation.Validate(doc)
			for _, c := range report.Checks {
				if c.Passed {
					_, _ = fmt.Fprintln(w, ui.StatusSuccess(c.Name))
				} else {
					_, _ = fmt.Fprintln(w, ui.StatusError(fmt.Sprintf("%s: %v", c.Name, c.Err)))
				}
			}
			if !report.Valid() {
				return fmt.Errorf("%w: %w", ErrInvalidSyncfile, report.Err())
			}
			_, _ = fmt.Fprintln(w, "Syncfile is valid")
			return nil
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Create or extend a syncfile and prepare its destinations",
		UsageText: "pathsync init <syncfile> [--pair SRC=DEST ...]",
		Description: `Adds the given pairs to the syncfile (creating it if needed), gives
   every pair without a cache file the default DEST/cache, and creates
   missing destination directories and empty cache files.

   Examples:
     pathsync init ~/sync.json --pair ~/docs=/mnt/backup/docs
     pathsync init ~/sync.yaml`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "pair",
				Aliases: []string{"p"},
				Usage:   "Pair to add, as SRC=DEST (repeatable)",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("init requires exactly 1 argument: <syncfile>")
			}
			w := cmd.Root().Writer
			path := cmd.Args().First()

			pairs := make(map[string]string)
			for _, spec := range cmd.StringSlice("pair") {
				src, dest, err := config.ParsePairSpec(spec)
				if err != nil {
					return err
				}
				pairs[src] = dest
			}

			res, err := config.Scaffold(path, pairs)
			if err != nil {
				return fmt.Errorf("failed to initialize syncfile: %w", err)
			}

			if res.Created {
				_, _ = fmt.Fprintln(w, ui.StatusSuccess("Created "+util.ExpandPath(path)))
			} else {
				_, _ = fmt.Fprintln(w, ui.StatusSuccess("Updated "+util.ExpandPath(path)))
			}
			for _, d := range res.Destinations {
				_, _ = fmt.Fprintln(w, "  created directory", d)
			}
			for _, c := range res.Caches {
				_, _ = fmt.Fprintln(w, "  created cache", c)
			}
			_, _ = fmt.Fprintf(w, "%d pair(s) configured\n", len(res.Syncfile.Pairs))
			return nil
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect cache files",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print the fingerprints stored in a cache file",
				UsageText: "pathsync cache show <cachefile>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the raw cache file instead of a table",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return errors.New("cache show requires exactly 1 argument: <cachefile>")
					}
					w := cmd.Root().Writer

					c, err := cache.Load(util.ExpandPath(cmd.Args().First()))
					if err != nil {
						return err
					}

					if cmd.Bool("json") {
						data, err := c.Encode()
						if err != nil {
							return err
						}
						_, _ = w.Write(data)
						return nil
					}

					_, _ = fmt.Fprintln(w, renderCacheTable(c))
					_, _ = fmt.Fprintf(w, "%d file(s) cached\n", c.Size())
					return nil
				},
			},
		},
	}
}

// renderCacheTable lays out cache entries sorted by path.
func renderCacheTable(c *cache.Cache) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("PATH", "MD5", "MODIFIED").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, key := range c.Keys() {
		fp, _ := c.Get(key)
		t.Row(key, fp.Hash, formatModified(fp.Modified))
	}
	return t.Render()
}

// formatModified shows a cached timestamp with its relative age.
func formatModified(s string) string {
	ts, err := cache.ParseModTime(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(fmt.Sprintf("%s (%s)", s, humanize.Time(ts)))
}
