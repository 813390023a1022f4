package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Server-perf/watchman/cmd"
	"github.com/Server-perf/watchman/pkg/logging"
	"github.com/Server-perf/watchman/pkg/query"
	"github.com/Server-perf/watchman/pkg/root"
	"github.com/Server-perf/watchman/pkg/timeutil"
)

var queryConfiguration struct {
	// expression is a JSON-encoded term, e.g. `["suffix", "go"]`.
	expression string
	// relativeRoot restricts matches to a subtree of path.
	relativeRoot string
	// suffixes selects the suffix generator when non-empty.
	suffixes string
	// since selects a wall-clock baseline in RFC 3339.
	since string
	// dedup enables wholename deduplication.
	dedup bool
	// fields is a comma-separated list of field names to select for output,
	// checked against query.KnownFields.
	fields string
	// settleTimeout bounds how long the initial crawl is given to finish
	// before the query runs.
	settleTimeout time.Duration
}

var queryCommand = &cobra.Command{
	Use:   "query <path>",
	Short: "Crawl a filesystem tree once and run a single query against it",
	Args:  cobra.ExactArgs(1),
	Run: func(command *cobra.Command, arguments []string) {
		runQuery(arguments[0])
	},
}

func init() {
	flags := queryCommand.Flags()
	flags.StringVar(&queryConfiguration.expression, "expr", "", "JSON-encoded query term")
	flags.StringVar(&queryConfiguration.relativeRoot, "relative-root", "", "restrict matches to this subtree")
	flags.StringVar(&queryConfiguration.suffixes, "suffix", "", "comma-separated list of suffixes to select via the suffix generator")
	flags.StringVar(&queryConfiguration.since, "since", "", "RFC 3339 timestamp baseline for the time generator")
	flags.BoolVar(&queryConfiguration.dedup, "dedup", false, "deduplicate results by wholename")
	flags.StringVar(&queryConfiguration.fields, "fields", "", "comma-separated list of fields to select, e.g. name,size,mtime")
	flags.DurationVar(&queryConfiguration.settleTimeout, "settle-timeout", 5*time.Second, "time allowed for the initial crawl to settle before querying")
}

func buildQuery() (*query.Query, error) {
	q := &query.Query{
		CaseSensitive: true,
		RelativeRoot:  queryConfiguration.relativeRoot,
		DedupResults:  queryConfiguration.dedup,
	}

	if queryConfiguration.suffixes != "" {
		q.Suffixes = strings.Split(queryConfiguration.suffixes, ",")
	}

	if queryConfiguration.fields != "" {
		q.Fields = query.FieldSet(strings.Split(queryConfiguration.fields, ","))
		if err := q.Fields.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid --fields selection")
		}
	}

	if queryConfiguration.since != "" {
		t, err := time.Parse(time.RFC3339, queryConfiguration.since)
		if err != nil {
			return nil, errors.Wrap(err, "unable to parse since timestamp")
		}
		q.Since = query.SinceTimestamp(t)
	}

	if queryConfiguration.expression != "" {
		var term []interface{}
		if err := json.Unmarshal([]byte(queryConfiguration.expression), &term); err != nil {
			return nil, errors.Wrap(err, "unable to parse query expression")
		}
		expr, err := query.ParseTerm(term)
		if err != nil {
			return nil, errors.Wrap(err, "unable to compile query expression")
		}
		q.Expression = expr
	}

	return q, nil
}

// awaitSettled gives the crawler up to timeout to drain its initial
// backlog. There is no explicit "crawl complete" signal, so this instead
// waits for r's change tracker to go quiet: each drain notification resets
// a short quiet timer, and settling is declared once that timer fires (or
// the overall timeout elapses first). This is sufficient for a one-shot CLI
// query against a tree that isn't being concurrently modified.
func awaitSettled(r *root.Root, timeout time.Duration) {
	const quietPeriod = 100 * time.Millisecond

	changes := make(chan uint64)
	go func() {
		var index uint64
		for {
			next, poisoned := r.WaitForChange(index)
			if poisoned {
				return
			}
			index = next
			select {
			case changes <- index:
			case <-time.After(timeout):
				return
			}
		}
	}()

	deadline := time.NewTimer(timeout)
	defer timeutil.StopAndDrainTimer(deadline)
	quiet := time.NewTimer(quietPeriod)
	defer timeutil.StopAndDrainTimer(quiet)

	for {
		select {
		case <-changes:
			timeutil.StopAndDrainTimer(quiet)
			quiet.Reset(quietPeriod)
		case <-quiet.C:
			return
		case <-deadline.C:
			return
		}
	}
}

func runQuery(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to resolve path"))
	}

	q, err := buildQuery()
	if err != nil {
		cmd.Fatal(err)
	}

	r := root.New(absPath, logging.RootLogger.Sublogger("query"))
	if err := r.Start(); err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to start crawl"))
	}
	defer r.Stop()

	awaitSettled(r, queryConfiguration.settleTimeout)

	result, err := query.Execute(context.Background(), r.View(), q, r.RootNumber())
	if err != nil {
		cmd.Fatal(errors.Wrap(err, "query failed"))
	}

	fmt.Printf("root_number=%d session=%s ticks=%d fresh_instance=%t deduped=%d matches=%d\n",
		result.RootNumber, r.SessionID(), result.Ticks, result.IsFreshInstance, result.NumDeduped, len(result.Matches))
	for _, m := range result.Matches {
		fmt.Printf("%s\tnew=%t\n", m.WholeName, m.IsNew)
	}
}
