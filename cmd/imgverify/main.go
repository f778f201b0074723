package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sunshineplan/imgverify"
	"github.com/sunshineplan/imgverify/corpus"
	"github.com/sunshineplan/imgverify/harness"
	"github.com/sunshineplan/imgverify/oracle"
	"github.com/sunshineplan/utils/progressbar"
	"github.com/vharitonsky/iniflags"
)

var (
	src       = flag.String("src", "", "")
	oracleCmd = flag.String("oracle", "", "")
	record    = flag.Bool("record", false, "")
	worker    = flag.Int("worker", harness.DefaultWorkers, "")
	timeout   = flag.Duration("timeout", harness.DefaultTimeout, "")
	maxPixels = flag.Int64("maxpixels", 0, "")
	noOrient  = flag.Bool("no-orientation", false, "")
	noProfile = flag.Bool("no-profile", false, "")
	logFile   = flag.String("log", "", "")
	debug     = flag.Bool("debug", false, "")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
	fmt.Println(`
  --src
		corpus directory to verify
  --oracle
		reference decoder command line. The command receives an image path
		and writes width, height and raw RGBA pixels to standard output.
  --record
		record oracle output as corpus snapshots instead of verifying
  --worker
		number of images processed concurrently (default: 16)
  --timeout
		per-image watchdog (default: 30s)
  --maxpixels
		decoded pixel limit, 0 for the default, negative for none
  --no-orientation
		skip the orientation pass
  --no-profile
		skip the color profile pass
  --log
		append output to this file as well as standard output`)
}

func main() {
	var code int
	defer func() { os.Exit(code) }()

	self, err := os.Executable()
	if err != nil {
		log.Println("Failed to get self path:", err)
		code = 2
		return
	}

	flag.Usage = usage
	iniflags.SetConfigFile(filepath.Join(filepath.Dir(self), "config.ini"))
	iniflags.SetAllowMissingConfigFile(true)
	iniflags.Parse()

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Println("Failed to open log file:", err)
			code = 2
			return
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(f, os.Stdout))
	}

	if *src == "" {
		log.Print("No corpus directory.")
		code = 2
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := corpus.Load(*src)
	if err != nil {
		log.Print(err)
		code = 2
		return
	}
	total := len(c.Entries)
	log.Println("Total images:", total)

	var ref *oracle.Exec
	if *oracleCmd != "" {
		fields := strings.Fields(*oracleCmd)
		ref = oracle.New(fields[0], fields[1:]...)
	}

	opts := imgverify.NewOptions().SetOrientation(!*noOrient).SetProfile(!*noProfile)

	if *record {
		if ref == nil {
			log.Print("Record mode needs an oracle.")
			code = 2
			return
		}
		if !recordSnapshots(ctx, c, ref, opts) {
			code = 1
			return
		}
		log.Print("Done.")
		return
	}

	h := harness.Harness{
		Backend: &imgverify.Backend{MaxPixels: *maxPixels},
		Workers: *worker,
		Timeout: *timeout,
		Options: opts,
	}
	if ref != nil {
		h.Oracle = ref
	}

	pb := progressbar.New(total)
	pb.Start()
	h.OnResult = func(harness.Result) { pb.Add(1) }
	report, err := h.Run(ctx, c)
	pb.Done()
	if err != nil {
		log.Print(err)
		code = 2
		return
	}

	count := report.Count()
	log.Printf("Verified %d images in %s: %d ok, %d fail, %d error, %d known, %d skipped",
		total, report.Elapsed.Round(time.Millisecond),
		count.Pass, count.Fail, count.Errors, count.Known, count.Skipped)
	if *debug {
		for _, res := range report.Failures() {
			if res.Diff == nil {
				continue
			}
			for _, p := range res.Diff.Worst {
				log.Printf("[Debug]%s: %s", res.Entry.ID, p)
			}
		}
	}
	if report.Partial {
		log.Print("Cancelled, report is partial.")
		code = 1
		return
	}
	if !report.Ok() {
		code = 1
		return
	}
	log.Print("Done.")
}
