package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/chatvault"
	"github.com/poiesic/chatvault/core"
	"github.com/poiesic/chatvault/ingestion"
	"github.com/poiesic/chatvault/reembed"
	"github.com/poiesic/chatvault/search"
)

var errLocationRequired = errors.New("import location is required: a file path, - for stdin, or s3://bucket/key")

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a conversation export",
		ArgsUsage: "<path | - | s3://bucket/key>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "policy",
				Aliases: []string{"p"},
				Usage:   "What to do with conversations already stored (skip, overwrite, merge)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Write the import report as JSON to stdout",
			},
		},
		Action: withVault(importCommand),
	}
}

func importCommand(c *cli.Context, v *chatvault.Vault) error {
	location := c.Args().First()
	if location == "" {
		return errLocationRequired
	}

	report, err := v.Import(c.Context, location, c.String("policy"))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return printReport(c, report)
}

func resumeCmd() *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Embed conversations whose indexing did not finish",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Resume at most N conversations (0 resumes all)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Write the report as JSON to stdout",
			},
		},
		Action: withVault(resumeCommand),
	}
}

func resumeCommand(c *cli.Context, v *chatvault.Vault) error {
	report, err := v.Pipeline().ResumePending(c.Context, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("resume failed: %w", err)
	}
	return printReport(c, report)
}

func printReport(c *cli.Context, report *ingestion.Report) error {
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	}

	w := c.App.ErrWriter
	fmt.Fprintf(w, "Import %s: %d total, %d imported, %d merged, %d overwritten, %d skipped, %d resumed, %d failed in %v\n",
		report.ImportID, report.Total, report.Imported, report.Merged, report.Overwritten,
		report.Skipped, report.Resumed, report.Failed, report.Duration())
	failures := report.Failures()
	for _, o := range failures {
		fmt.Fprintf(w, "  record %d (%s): %s\n", o.Index, o.ConversationID, o.Error)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d conversations failed", len(failures), report.Total)
	}
	return nil
}

func searchCmd() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search conversations by meaning",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "k",
				Aliases: []string{"n"},
				Usage:   "Number of results (0 uses the configured default)",
			},
			&cli.IntFlag{
				Name:  "per-conversation",
				Usage: "Results allowed from one conversation (0 uses the configured default)",
			},
		},
		Action: withVault(searchCommand),
	}
}

func searchCommand(c *cli.Context, v *chatvault.Vault) error {
	query := strings.Join(c.Args().Slice(), " ")
	hits, err := v.Retriever().Search(c.Context, query,
		search.WithK(c.Int("k")),
		search.WithCap(c.Int("per-conversation")),
	)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(hits) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching conversations.")
		return nil
	}
	for i, hit := range hits {
		printHit(c, i+1, hit)
	}
	return nil
}

func printHit(c *cli.Context, rank int, hit core.Hit) {
	conv := hit.Conversation
	date := "undated"
	if !conv.CreatedAt.IsZero() {
		date = conv.CreatedAt.Format("2006-01-02")
	}
	fmt.Fprintf(c.App.Writer, "%d. [%.3f] %s (%s, %s)\n", rank, hit.Score, conv.Title, conv.ID, date)
	if hit.Excerpt != "" {
		fmt.Fprintf(c.App.Writer, "   %s\n", hit.Excerpt)
	}
}

func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of conversations to load per batch",
			Value: reembed.DefaultBatchSize,
		},
		&cli.IntFlag{
			Name:  "report-interval",
			Usage: "Report progress every N conversations",
			Value: 10,
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Process conversations that are already up to date",
		},
	}
}

func batchConfig(c *cli.Context) (*reembed.Config, error) {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		Force:          c.Bool("force"),
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return nil, fmt.Errorf("report-interval must be greater than 0")
	}
	return cfg, nil
}

func reembedCmd() *cli.Command {
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Embed every conversation with the configured embedding model",
		Flags:  batchFlags(),
		Action: withVault(reembedCommand),
	}
}

func reembedCommand(c *cli.Context, v *chatvault.Vault) error {
	cfg, err := batchConfig(c)
	if err != nil {
		return err
	}
	r, err := v.NewReembedder(cfg, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Embedding provider: %s\n", v.Config().AI.Provider)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", v.Pipeline().Model())

	if err := r.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func retagCmd() *cli.Command {
	return &cli.Command{
		Name:   "retag",
		Usage:  "Classify conversations again with the configured classifier",
		Flags:  batchFlags(),
		Action: withVault(retagCommand),
	}
}

func retagCommand(c *cli.Context, v *chatvault.Vault) error {
	cfg, err := batchConfig(c)
	if err != nil {
		return err
	}
	r, err := v.NewRetagger(cfg, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Classifier: %s\n\n", v.Config().Import.Classifier)

	if err := r.Run(c.Context); err != nil {
		return fmt.Errorf("retagging failed: %w", err)
	}
	return nil
}

func tagsCmd() *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "List tags with their conversation counts",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "categories",
				Usage: "List categories instead of tags",
			},
		},
		Action: withVault(tagsCommand),
	}
}

func tagsCommand(c *cli.Context, v *chatvault.Vault) error {
	list := v.Store().Tags
	if c.Bool("categories") {
		list = v.Store().Categories
	}
	counts, err := list(c.Context)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	for _, lc := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", lc.Label, lc.Count)
	}
	return tw.Flush()
}
