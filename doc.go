// Package rowfill runs a tabular dataset through a generative-AI completion
// endpoint, one row at a time, and writes the structured result back into the
// row it came from. Runs are interruptible and resumable: the table itself is
// the progress record, so a re-run picks up exactly the rows whose result
// cell is still empty, without re-billing completed rows.
//
// # Pipeline
//
// A run wires five components together:
//
//   - Table (table.go) loads the dataset from a CSV/TSV file or an XLSX
//     workbook and persists it back without destroying embedded images.
//   - ImageIndex (images.go) recovers inline workbook images and the row
//     each one is anchored to, so vision-capable models can see them.
//   - Pending (tracker.go) filters out rows that already carry a result.
//   - Scheduler (scheduler.go) fans the remaining rows out to a bounded
//     worker pool, pacing each remote call and snapshotting periodically.
//   - ResultStore (store.go) serializes every table mutation behind a
//     single lock.
//
// The remote boundary is a small closed set of providers (OpenAI-style,
// Anthropic-style, Google-style) behind the Provider interface, wrapped in
// a retry policy that retries transport failures and timeouts only. A
// well-formed non-2xx response is logged and counts as a single failed
// attempt; the row stays empty and is retried on the next full run.
//
// # Basic usage
//
//	cfg, _, err := rowfill.LoadConfig("config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p, err := rowfill.NewProcessor(cfg, slog.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := p.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// Results land in a column named after the model (see ResultColumn), so
// re-running with a different model fills a different column instead of
// clobbering earlier output.
package rowfill
