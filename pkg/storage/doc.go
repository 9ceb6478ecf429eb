// Package storage persists engagement results.
//
// Every sink implements Sink and accepts concurrent Append calls, one per
// processed username, in any order:
//   - JSONLSink appends one JSON object per line (the default dataset)
//   - CSVSink appends rows under a header written once per file
//   - PostgresSink inserts rows into a table created on first use
//   - MemorySink and Discard serve tests and dry runs
//
// Usage:
//
//	sink, err := storage.New(ctx, cfg.Output, runID)
//	if err != nil {
//		return err
//	}
//	defer sink.Close()
//	err = sink.Append(ctx, result)
//
// WriteFileAtomic is the temp-file-and-rename helper shared by the status
// file and checkpoint writers.
package storage
