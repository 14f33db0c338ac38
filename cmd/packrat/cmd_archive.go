package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/packratbot/packrat/internal/archive"
	"github.com/packratbot/packrat/internal/config"
	"github.com/packratbot/packrat/internal/consts"
)

var archiveHwd = &ArchiveRunner{}

// ArchiveRunner inspects the local archive database from the terminal.
type ArchiveRunner struct{}

var (
	cID    = color.New(color.FgCyan, color.Bold)
	cTitle = color.New(color.FgWhite, color.Bold)
	cMeta  = color.New(color.FgHiBlack)
	cTag   = color.New(color.FgYellow)
)

func (r *ArchiveRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Inspect the local archive database",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the most recent archives",
				Action: r.list,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of archives to show",
						Value: 20,
					},
				},
			},
			{
				Name:      "show",
				Usage:     "Show one archive with its notes and tags",
				ArgsUsage: "<id>",
				Action:    r.show,
			},
		},
	}
}

func (r *ArchiveRunner) openStore(ctx context.Context) (*archive.Store, error) {
	cfg, err := config.Load(consts.DefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config error: %w", err)
	}

	store := archive.NewStore(cfg.Archive.DBPath)
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("open archive store: %w", err)
	}
	return store, nil
}

func (r *ArchiveRunner) list(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	archives, err := store.ListRecent(ctx, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}
	if len(archives) == 0 {
		fmt.Println("No archives yet.")
		return nil
	}

	for _, a := range archives {
		cID.Printf("#%-5d", a.ID)
		cMeta.Printf(" %s  %-12s", a.CreatedAt.Format("2006-01-02 15:04"), a.Kind)
		if a.Title != "" {
			cTitle.Printf("  %s", a.Title)
		}
		if a.SourceName != "" {
			cMeta.Printf("  (from %s)", a.SourceName)
		}
		fmt.Println()
	}
	return nil
}

func (r *ArchiveRunner) show(ctx context.Context, cmd *cli.Command) error {
	id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("archive id must be a number")
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	a, err := store.GetArchive(ctx, id)
	if err != nil {
		return fmt.Errorf("get archive: %w", err)
	}
	if a == nil {
		return fmt.Errorf("archive #%d not found", id)
	}

	cID.Printf("#%d", a.ID)
	cMeta.Printf("  %s  %s\n", a.Kind, a.CreatedAt.Format("2006-01-02 15:04:05"))
	if a.Title != "" {
		cTitle.Printf("%s\n", a.Title)
	}
	if a.SourceName != "" {
		cMeta.Printf("Source: %s", a.SourceName)
		if a.SourceType != "" {
			cMeta.Printf(" (%s)", a.SourceType)
		}
		fmt.Println()
	}
	if a.ItemCount > 1 {
		cMeta.Printf("Items: %d\n", a.ItemCount)
	}
	if a.PagePath != "" {
		cMeta.Printf("Page: %s\n", a.PagePath)
	}
	if a.Content != "" {
		fmt.Printf("\n%s\n", a.Content)
	}

	tags, err := store.TagsFor(ctx, id)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}
	if len(tags) > 0 {
		fmt.Println()
		for _, tag := range tags {
			cTag.Printf("#%s ", tag)
		}
		fmt.Println()
	}

	notes, err := store.GetNotes(ctx, id)
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}
	for _, n := range notes {
		fmt.Println()
		cMeta.Printf("note @ %s\n", n.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Println(n.Content)
	}

	return nil
}
