// Package main reports on a harvest output directory: record counts per
// target, cross-reference coverage and recent runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/animap/harvester/internal/domain"
	"github.com/animap/harvester/internal/index"
	"github.com/animap/harvester/internal/logger"
	"github.com/animap/harvester/internal/runlog"
	"github.com/animap/harvester/internal/sink"
)

func main() {
	output := flag.String("output", envOr("OUTPUT_DIR", "media_database"), "Record output directory")
	indexPath := flag.String("index-path", os.Getenv("INDEX_PATH"), "Cross-reference index directory (default: {output}/.index)")
	runlogPath := flag.String("runlog-path", os.Getenv("RUNLOG_PATH"), "Run history database (default: {output}/runs.db)")
	runs := flag.Int("runs", 10, "Number of recent runs to show")
	lookup := flag.String("lookup", "", "Show the cross-references of catalog:id")
	title := flag.String("title", "", "Find index entries whose title contains text")
	flag.Parse()

	if *indexPath == "" {
		*indexPath = filepath.Join(*output, ".index")
	}
	if *runlogPath == "" {
		*runlogPath = filepath.Join(*output, "runs.db")
	}

	ctx := context.Background()

	fmt.Println("=== Records ===")
	printInventory(*output)

	x, err := index.Open(*indexPath, logger.Discard())
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}
	defer x.Close()

	switch {
	case *lookup != "":
		if err := printLookup(ctx, x, *lookup); err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		return
	case *title != "":
		if err := printTitleMatches(ctx, x, *title); err != nil {
			log.Fatalf("Title search failed: %v", err)
		}
		return
	}

	fmt.Println()
	fmt.Println("=== Cross-reference coverage ===")
	if err := printCoverage(ctx, x); err != nil {
		log.Fatalf("Failed to read index: %v", err)
	}

	if _, err := os.Stat(*runlogPath); err != nil {
		return
	}
	history, err := runlog.Open(*runlogPath, logger.Discard())
	if err != nil {
		log.Fatalf("Failed to open run history: %v", err)
	}
	defer history.Close()

	fmt.Println()
	fmt.Println("=== Recent runs ===")
	if err := printRuns(ctx, history, *runs); err != nil {
		log.Fatalf("Failed to read run history: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printInventory(output string) {
	var totalFiles int
	var totalBytes int64
	for _, t := range domain.Targets() {
		files, bytes, err := sink.Inventory(output, t)
		if err != nil {
			fmt.Printf("%-16s error: %v\n", t, err)
			continue
		}
		if files == 0 {
			continue
		}
		totalFiles += files
		totalBytes += bytes
		fmt.Printf("%-16s %8s files %10s\n", t, humanize.Comma(int64(files)), humanize.Bytes(uint64(bytes)))
	}
	fmt.Printf("%-16s %8s files %10s\n", "total", humanize.Comma(int64(totalFiles)), humanize.Bytes(uint64(totalBytes)))
}

func printCoverage(ctx context.Context, x *index.Index) error {
	coverage, err := x.Coverage(ctx)
	if err != nil {
		return err
	}

	for _, c := range domain.Catalogs {
		cov, ok := coverage[c]
		if !ok {
			continue
		}
		fmt.Printf("%s: %d entries (%d stubs)\n", c, cov.Entries, cov.Stubs)
		for _, other := range domain.Catalogs {
			n := cov.Linked[other]
			if other == c || n == 0 {
				continue
			}
			fmt.Printf("  -> %-8s %7d  %5.1f%%\n", other, n, percent(n, cov.Entries))
		}
	}
	return nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

func printLookup(ctx context.Context, x *index.Index, ref string) error {
	catalog, id, ok := strings.Cut(ref, ":")
	if !ok || !domain.Catalog(catalog).Valid() || id == "" {
		return fmt.Errorf("expected catalog:id, got %q", ref)
	}

	e, found, err := x.Lookup(ctx, domain.Catalog(catalog), domain.Identifier(id))
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("%s not indexed\n", ref)
		return nil
	}
	printEntry(e)
	return nil
}

func printTitleMatches(ctx context.Context, x *index.Index, text string) error {
	entries, err := x.FindByTitle(ctx, text, 50)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No entries match %q\n", text)
		return nil
	}
	for _, e := range entries {
		printEntry(e)
	}
	return nil
}

func printEntry(e index.Entry) {
	fmt.Printf("%s:%s", e.Catalog, e.ID)
	if e.Title != "" {
		fmt.Printf("  %s", e.Title)
	}
	if e.Stub {
		fmt.Print("  (stub)")
	}
	fmt.Println()
	if e.MediaKey != "" {
		fmt.Printf("  media key: %s\n", e.MediaKey)
	}

	catalogs := make([]domain.Catalog, 0, len(e.Refs))
	for c, id := range e.Refs {
		if id != "" && c != e.Catalog {
			catalogs = append(catalogs, c)
		}
	}
	slices.Sort(catalogs)
	for _, c := range catalogs {
		fmt.Printf("  %-8s %s\n", c, e.Refs[c])
	}
}

func printRuns(ctx context.Context, history *runlog.Log, limit int) error {
	recent, err := history.Recent(ctx, "", limit)
	if err != nil {
		return err
	}
	for _, r := range recent {
		s := r.Summary
		took := "-"
		if !s.FinishedAt.IsZero() {
			took = s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("%s  %-16s %-6s %-11s %s  processed=%d skipped=%d failed=%d (%s)\n",
			r.ID, s.Target, s.Mode, r.Status,
			s.StartedAt.Local().Format(time.DateTime),
			s.Processed, s.Skipped, s.Failed, took,
		)
		if r.Error != "" {
			fmt.Printf("  error: %s\n", r.Error)
		}
	}
	return nil
}
