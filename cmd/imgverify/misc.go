package main

import (
	"context"
	"os"

	"github.com/sunshineplan/imgverify"
	"github.com/sunshineplan/imgverify/corpus"
	"github.com/sunshineplan/imgverify/oracle"
	"github.com/sunshineplan/utils/log"
	"github.com/sunshineplan/utils/progressbar"
	"github.com/sunshineplan/workers"
)

// recordSnapshots decodes every corpus entry through the oracle and
// records the canonical result as the entry's reference snapshot.
// It reports whether every entry was recorded.
func recordSnapshots(ctx context.Context, c *corpus.Corpus, ref *oracle.Exec, opts *imgverify.Options) bool {
	pb := progressbar.New(len(c.Entries))
	pb.Start()
	failed := make([]bool, len(c.Entries))
	workers.New(*worker).Slice(c.Entries, func(i int, _ interface{}) {
		defer pb.Add(1)
		if ctx.Err() != nil {
			failed[i] = true
			return
		}
		failed[i] = recordOne(ctx, c, &c.Entries[i], ref, opts) != nil
	})
	pb.Done()
	for _, f := range failed {
		if f {
			return false
		}
	}
	return true
}

func recordOne(ctx context.Context, c *corpus.Corpus, e *corpus.Entry, ref *oracle.Exec, opts *imgverify.Options) error {
	data, err := os.ReadFile(e.Source)
	if err != nil {
		log.Error("Failed to read image", "image", e.ID, "error", err)
		return err
	}
	tctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	raster, meta, err := ref.Decode(tctx, data)
	if err != nil {
		log.Error("Failed to decode image", "image", e.ID, "error", err)
		return err
	}
	img, err := opts.Canonicalize(raster, meta)
	if err != nil {
		log.Error("Failed to canonicalize image", "image", e.ID, "error", err)
		return err
	}
	if err := corpus.SaveSnapshot(c.SnapshotPath(e), img); err != nil {
		log.Error("Failed to save snapshot", "path", c.SnapshotPath(e), "error", err)
		return err
	}
	return nil
}
