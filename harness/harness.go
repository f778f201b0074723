// Package harness drives a decoder across a corpus and verifies every
// canonical result against reference material. Entries are processed
// concurrently but reported in corpus order, so two runs over the same
// tree produce comparable logs.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sunshineplan/imgverify"
	"github.com/sunshineplan/imgverify/corpus"
	"github.com/sunshineplan/workers"
)

// Defaults for an unconfigured Harness.
const (
	DefaultWorkers = 16
	DefaultTimeout = 30 * time.Second
)

// Outcome classifies one verified entry.
type Outcome int

const (
	// Skipped entries were not reached before cancellation.
	Skipped Outcome = iota
	Pass
	// Fail is a comparison verdict: the entry decoded but did not
	// match its reference within tolerance.
	Fail
	// Error covers everything before a verdict: unreadable source,
	// decode failure, missing reference, watchdog timeout.
	Error
)

var outcomeNames = []string{"skipped", "pass", "fail", "error"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Result is the verdict for one corpus entry.
type Result struct {
	Entry   corpus.Entry
	Outcome Outcome
	// Diff is set for Pass and Fail outcomes.
	Diff *imgverify.Diff
	// Err is set for Error outcomes.
	Err      error
	Warnings []string
	Elapsed  time.Duration
}

// Report is the outcome of a run, results in corpus order.
type Report struct {
	Results []Result
	// Partial is set when the run was cancelled before every entry
	// was processed.
	Partial bool
	Elapsed time.Duration
}

// Counts tallies a report. Failing entries marked problematic in the
// manifest land in Known instead of Fail or Errors.
type Counts struct {
	Pass, Fail, Errors, Skipped, Known int
}

func (r *Report) Count() Counts {
	var c Counts
	for _, res := range r.Results {
		switch {
		case res.Outcome == Skipped:
			c.Skipped++
		case res.Outcome == Pass:
			c.Pass++
		case res.Entry.Problematic:
			c.Known++
		case res.Outcome == Fail:
			c.Fail++
		default:
			c.Errors++
		}
	}
	return c
}

// Ok reports whether every entry was verified and none failed, known
// issues aside.
func (r *Report) Ok() bool {
	c := r.Count()
	return !r.Partial && c.Fail == 0 && c.Errors == 0
}

// Failures returns failing results, known issues excluded.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if (res.Outcome == Fail || res.Outcome == Error) && !res.Entry.Problematic {
			out = append(out, res)
		}
	}
	return out
}

// Known returns results for entries marked problematic.
func (r *Report) Known() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Entry.Problematic && res.Outcome != Skipped {
			out = append(out, res)
		}
	}
	return out
}

// Harness verifies a backend against recorded or live references.
type Harness struct {
	// Backend is the decoder under test. Required.
	Backend imgverify.Decoder
	// Oracle, when set, is decoded live for every entry and takes
	// precedence over recorded snapshots and digests.
	Oracle imgverify.Decoder

	// Workers is the number of concurrent entries, DefaultWorkers
	// when zero. Timeout is the per-entry watchdog, DefaultTimeout
	// when zero.
	Workers int
	Timeout time.Duration

	// Options configures canonicalization; nil means full pipeline.
	Options *imgverify.Options

	// Logger receives one line per verified entry. nil logs to the
	// standard logger.
	Logger *log.Logger
	// OnResult, when set, is called after each entry, from worker
	// goroutines.
	OnResult func(Result)
}

func (h *Harness) workers() int {
	if h.Workers > 0 {
		return h.Workers
	}
	return DefaultWorkers
}

func (h *Harness) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return DefaultTimeout
}

func (h *Harness) options() *imgverify.Options {
	if h.Options != nil {
		return h.Options
	}
	return imgverify.NewOptions()
}

func (h *Harness) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

var errNoReference = errors.New("no reference for entry")

// Run verifies every corpus entry. Cancelling ctx stops scheduling new
// entries; ones already in flight run to their watchdog deadline. The
// returned report is then partial, with unreached entries Skipped.
func (h *Harness) Run(ctx context.Context, c *corpus.Corpus) (*Report, error) {
	if h.Backend == nil {
		return nil, errors.New("harness: no backend")
	}

	results := make([]Result, len(c.Entries))
	for i := range results {
		results[i] = Result{Entry: c.Entries[i], Outcome: Skipped}
	}

	start := time.Now()
	workers.New(h.workers()).Slice(c.Entries, func(i int, _ interface{}) {
		if ctx.Err() != nil {
			return
		}
		results[i] = h.verify(c, &c.Entries[i])
		h.emit(results[i])
	})

	return &Report{
		Results: results,
		Partial: ctx.Err() != nil,
		Elapsed: time.Since(start),
	}, nil
}

func (h *Harness) verify(c *corpus.Corpus, e *corpus.Entry) Result {
	res := Result{Entry: *e}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	// The watchdog is detached from the run context on purpose:
	// cancellation stops new entries from being scheduled, while
	// in-flight ones finish or time out on their own clock.
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout())
	defer cancel()

	data, err := os.ReadFile(e.Source)
	if err != nil {
		res.Outcome, res.Err = Error, err
		return res
	}

	raster, meta, err := decodeWatched(ctx, h.Backend, data)
	if err != nil {
		res.Outcome, res.Err = Error, err
		return res
	}
	depth := raster.Depth
	got, err := h.options().Canonicalize(raster, meta)
	if err != nil {
		res.Outcome, res.Err = Error, err
		return res
	}
	res.Warnings = got.Warnings

	want, err := h.reference(ctx, e, data)
	if err != nil {
		res.Outcome, res.Err = Error, err
		return res
	}
	tol := c.Tolerance(e, depth)

	if want == nil {
		// Digest-only reference: exact match or nothing.
		if corpus.Hash(got) == e.Hash {
			res.Outcome = Pass
			res.Diff = &imgverify.Diff{
				GotWidth: got.Width, GotHeight: got.Height,
				WantWidth: got.Width, WantHeight: got.Height,
				Pass: true,
			}
		} else {
			res.Outcome = Fail
			res.Diff = &imgverify.Diff{
				GotWidth: got.Width, GotHeight: got.Height,
				Reason: "canonical digest mismatch",
			}
		}
		return res
	}

	diff, err := imgverify.Compare(got, want, tol)
	if err != nil {
		res.Outcome, res.Err = Error, err
		return res
	}
	res.Diff = diff
	if diff.Pass {
		res.Outcome = Pass
	} else {
		res.Outcome = Fail
	}
	return res
}

// reference resolves an entry's expected canonical image: a live
// oracle first, then a recorded snapshot. A nil image with nil error
// means only a digest is available.
func (h *Harness) reference(ctx context.Context, e *corpus.Entry, data []byte) (*imgverify.CanonicalImage, error) {
	switch {
	case h.Oracle != nil:
		raster, meta, err := decodeWatched(ctx, h.Oracle, data)
		if err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
		want, err := h.options().Canonicalize(raster, meta)
		if err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
		return want, nil
	case e.Snapshot != "":
		return corpus.LoadSnapshot(e.Snapshot)
	case e.Hash != "":
		return nil, nil
	}
	return nil, errNoReference
}

// decodeWatched runs a decode under the entry watchdog. A decoder that
// ignores its context is abandoned when the watchdog fires.
func decodeWatched(ctx context.Context, d imgverify.Decoder, data []byte) (*imgverify.Raster, imgverify.Metadata, error) {
	type decoded struct {
		raster *imgverify.Raster
		meta   imgverify.Metadata
		err    error
	}
	ch := make(chan decoded, 1)
	go func() {
		var r decoded
		r.raster, r.meta, r.err = d.Decode(ctx, data)
		ch <- r
	}()
	select {
	case r := <-ch:
		return r.raster, r.meta, r.err
	case <-ctx.Done():
		return nil, imgverify.Metadata{}, fmt.Errorf("watchdog: %w", ctx.Err())
	}
}

func (h *Harness) emit(res Result) {
	logger := h.logger()
	switch res.Outcome {
	case Pass:
		logger.Printf("IMG_OK: %s (%s)", res.Entry.ID, res.Elapsed.Round(time.Millisecond))
	case Fail:
		if res.Entry.Problematic {
			logger.Printf("IMG_FAIL: %s: %s (known issue)", res.Entry.ID, res.Diff.Reason)
		} else {
			logger.Printf("IMG_FAIL: %s: %s", res.Entry.ID, res.Diff.Reason)
		}
	case Error:
		if res.Entry.Problematic {
			logger.Printf("IMG_FAIL: %s: %v (known issue)", res.Entry.ID, res.Err)
		} else {
			logger.Printf("IMG_FAIL: %s: %v", res.Entry.ID, res.Err)
		}
	}
	for _, w := range res.Warnings {
		logger.Printf("IMG_WARN: %s: %s", res.Entry.ID, w)
	}
	if h.OnResult != nil {
		h.OnResult(res)
	}
}
