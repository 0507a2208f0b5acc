package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/emadnahed/shtlink/internal/services"
)

// maxLineBytes bounds a single input line.
const maxLineBytes = 1024 * 1024

var errRoundTripMismatch = errors.New("round trip verification failed")

// roundTripReport summarizes a batch round trip.
type roundTripReport struct {
	Lines      int
	Unique     int
	Rejected   int
	Verified   int
	Mismatched int
	Elapsed    time.Duration

	// Engine holds the allocation counters for the batch, when known.
	Engine *services.Stats
}

// PerSecond returns verified values per second.
func (r *roundTripReport) PerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Verified) / r.Elapsed.Seconds()
}

func newRoundTripCmd(a *app) *cobra.Command {
	var (
		concurrency int
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "roundtrip <file>",
		Short: "Encode and decode every line of a file and report throughput",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer f.Close()

			values, lines, err := readValues(f)
			if err != nil {
				return err
			}

			var trace io.Writer
			if verbose {
				trace = cmd.OutOrStdout()
			}

			engine.ResetStats()
			report, err := roundTrip(cmd.Context(), engine, values, concurrency, trace)
			if report != nil {
				stats := engine.Stats()
				report.Lines = lines
				report.Engine = &stats
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 8, "number of concurrent encoders")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every mapping")
	return cmd
}

// readValues returns the distinct non-blank trimmed lines of r in order,
// and the number of non-blank lines read.
func readValues(r io.Reader) ([]string, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	seen := make(map[string]struct{})
	var (
		values []string
		lines  int
	)
	for scanner.Scan() {
		v := strings.TrimSpace(scanner.Text())
		if v == "" {
			continue
		}
		lines++
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read input: %w", err)
	}
	return values, lines, nil
}

// roundTrip encodes every value, decodes the issued code and checks the
// result. Values must be distinct: concurrent re-encodes of one value would
// invalidate each other's codes. Oversized values are counted, not fatal.
func roundTrip(ctx context.Context, engine services.Allocator, values []string, concurrency int, trace io.Writer) (*roundTripReport, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		rejected, verified, mismatched atomic.Int64
		traceMu                        sync.Mutex
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, value := range values {
		value := value
		g.Go(func() error {
			code, err := engine.Encode(gctx, value)
			if errors.Is(err, services.ErrOversizedInput) {
				rejected.Add(1)
				return nil
			}
			if err != nil {
				return fmt.Errorf("encode %q: %w", value, err)
			}

			decoded, found, err := engine.Decode(gctx, code)
			if err != nil {
				return fmt.Errorf("decode %q: %w", code, err)
			}
			if !found || decoded != value {
				mismatched.Add(1)
				return nil
			}
			verified.Add(1)

			if trace != nil {
				traceMu.Lock()
				fmt.Fprintf(trace, "----------\nlong_value: %s\nshort_code: %s\ndecoded:    %s\n", value, code, decoded)
				traceMu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	report := &roundTripReport{
		Unique:     len(values),
		Rejected:   int(rejected.Load()),
		Verified:   int(verified.Load()),
		Mismatched: int(mismatched.Load()),
		Elapsed:    time.Since(start),
	}
	if err != nil {
		return report, err
	}
	if report.Mismatched > 0 {
		return report, fmt.Errorf("%w: %d value(s)", errRoundTripMismatch, report.Mismatched)
	}
	return report, nil
}

func printReport(w io.Writer, r *roundTripReport) {
	fmt.Fprintf(w, "Processed %d values (%d unique) in %.3fs\n", r.Lines, r.Unique, r.Elapsed.Seconds())
	fmt.Fprintf(w, "verified: %d, rejected: %d, mismatched: %d\n", r.Verified, r.Rejected, r.Mismatched)
	fmt.Fprintf(w, "%.1f values per second\n", r.PerSecond())
	if s := r.Engine; s != nil {
		fmt.Fprintf(w, "attempts: %d, code collisions: %d, long value collisions: %d, re-encodes: %d, exhausted: %d\n",
			s.Attempts, s.CodeCollisions, s.LongCollisions, s.Reencodes, s.Exhausted)
	}
}
