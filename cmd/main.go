package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/baxromumarov/pushstream"
	"github.com/baxromumarov/pushstream/celkey"
	"github.com/baxromumarov/pushstream/chanx"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type record = map[string]any

// groupStat is what the CLI reports for one key epoch.
type groupStat struct {
	key   string
	epoch uint64
	count int
}

func main() {
	root := &cobra.Command{
		Use:   "pushstream",
		Short: "Group JSON records by a CEL expression",
	}
	root.AddCommand(newGroupCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Read JSON lines and count records per key",
		Long: "Reads one JSON object per line, classifies each with the --by CEL expression " +
			"(the object is bound to `record`) and prints how many records every group received.",
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")
			file, _ := cmd.Flags().GetString("file")
			maxPerGroup, _ := cmd.Flags().GetInt("max-per-group")
			workers, _ := cmd.Flags().GetInt("workers")
			verbosity, _ := cmd.Flags().GetInt("verbosity")
			showMetrics, _ := cmd.Flags().GetBool("metrics")

			in := io.Reader(cmd.InOrStdin())
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			logger := funcr.New(func(prefix, args string) {
				fmt.Fprintln(cmd.ErrOrStderr(), prefix, args)
			}, funcr.Options{Verbosity: verbosity})

			return runGroup(cmd.Context(), groupParams{
				expr:        by,
				in:          in,
				out:         cmd.OutOrStdout(),
				maxPerGroup: maxPerGroup,
				workers:     workers,
				metrics:     showMetrics,
				logger:      logger,
			})
		},
	}
	cmd.Flags().String("by", "", "CEL expression computing the group key (required)")
	cmd.Flags().String("file", "", "input file of JSON lines; stdin when empty or -")
	cmd.Flags().Int("max-per-group", 0, "records a subscriber takes before leaving its group; 0 means no limit")
	cmd.Flags().Int("workers", 0, "continuation workers; 0 runs continuations inline")
	cmd.Flags().IntP("verbosity", "v", 0, "log verbosity")
	cmd.Flags().Bool("metrics", false, "print operator metrics after the run")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

type groupParams struct {
	expr        string
	in          io.Reader
	out         io.Writer
	maxPerGroup int
	workers     int
	metrics     bool
	logger      logr.Logger
}

func runGroup(ctx context.Context, p groupParams) error {
	classifier, err := celkey.Compile(p.expr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := pushstream.NewMetrics("pushstream")
	reg := prometheus.NewRegistry()
	if err := reg.Register(m); err != nil {
		return err
	}

	opts := []pushstream.Option{
		pushstream.WithLogger(p.logger),
		pushstream.WithMetrics(m),
	}
	var pool *pushstream.WorkerPool
	if p.workers > 0 {
		pool = pushstream.NewWorkerPool(ctx, p.workers)
		opts = append(opts, pushstream.WithScheduler(pool))
	}

	var (
		consumers errgroup.Group
		mu        sync.Mutex
		stats     []*groupStat
		opErr     error
	)
	down := pushstream.ObserverFuncs[*pushstream.GroupedStream[string, record]]{
		Next: func(g *pushstream.GroupedStream[string, record]) pushstream.Future {
			st := &groupStat{key: g.Key(), epoch: g.Epoch()}
			mu.Lock()
			stats = append(stats, st)
			mu.Unlock()

			obs := pushstream.NewChanObserver[record](16)
			sub := g.Subscribe(obs)
			consumers.Go(func() error {
				for range obs.C() {
					st.count++
					if p.maxPerGroup > 0 && st.count == p.maxPerGroup {
						sub.Cancel()
						obs.Cancel()
					}
				}
				return nil
			})
			return pushstream.Now(pushstream.Continue)
		},
		Error: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			opErr = err
		},
	}
	op := pushstream.NewGroupBy(down, classifier.Key, opts...)

	var (
		eg    errgroup.Group
		lines = make(chan record)
	)
	eg.Go(func() error {
		defer close(lines)
		return readRecords(ctx, p.in, lines)
	})
	eg.Go(func() error {
		err := pushstream.FeedChan(ctx, lines, op)
		if err != nil {
			return err
		}
		// A failed classification stops the feed without an error.
		cancel()
		return nil
	})
	srcErr := eg.Wait()
	if !op.Terminated() {
		op.OnComplete()
	}
	if err := consumers.Wait(); err != nil {
		return err
	}
	if pool != nil {
		if err := pool.Close(); err != nil {
			return err
		}
	}
	if srcErr != nil && !errors.Is(srcErr, context.Canceled) {
		return srcErr
	}
	if opErr != nil {
		return opErr
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].epoch < stats[j].epoch })
	for _, st := range stats {
		fmt.Fprintf(p.out, "%s\tepoch=%d\tcount=%d\n", st.key, st.epoch, st.count)
	}
	if p.metrics {
		return printMetrics(p.out, reg)
	}
	return nil
}

// readRecords sends every JSON line of r until r is exhausted or ctx ends.
func readRecords(ctx context.Context, r io.Reader, out chan<- record) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := chanx.Send(ctx, out, rec); err != nil {
			return err
		}
	}
	return sc.Err()
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			v := m.GetCounter().GetValue()
			if gauge := m.GetGauge(); gauge != nil {
				v = gauge.GetValue()
			}
			fmt.Fprintf(w, "%s %g\n", f.GetName(), v)
		}
	}
	return nil
}
