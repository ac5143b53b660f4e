package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kmercer/crypto-gatherer/internal/writer"
)

// replayer merges spilled batches back into the parquet store. Samples whose
// (ticker, seq) is already covered by an existing fragment are skipped, so
// the merge is idempotent.
func main() {
	dataDir := flag.String("data_dir", "data", "data directory holding the parquet store")
	ticker := flag.String("ticker", "", "ticker symbol to replay (required)")
	interval := flag.Duration("interval", time.Second, "cadence the data was collected at")
	window := flag.String("window", "day", "rotation window: day or hour")
	flag.Parse()

	if *ticker == "" {
		fmt.Fprintln(os.Stderr, "replayer: --ticker is required")
		flag.Usage()
		os.Exit(1)
	}

	label := interval.String()
	sink := writer.NewParquetSink(*dataDir, label, writer.Window(*window))
	spill := writer.NewSpill(*dataDir, label)

	res, err := writer.Replay(context.Background(), sink, spill, *ticker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replayer: %s: %v\n", *ticker, err)
		os.Exit(1)
	}

	fmt.Printf("replayed %s: %d samples merged, %d already present\n", *ticker, res.Merged, res.Skipped)
}
