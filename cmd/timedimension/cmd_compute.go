/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/timedimension/internal/datemath"
	"github.com/friendsincode/timedimension/internal/sequence"
	"github.com/friendsincode/timedimension/internal/timeline"
	"github.com/friendsincode/timedimension/internal/timestamp"
)

var gridCmd = &cobra.Command{
	Use:   "grid <start> <end> [period]",
	Short: "Expand a start/end pair into a grid of instants",
	Long:  "Print the epoch-millisecond grid from start to end stepping by period (default from TIMEDIM_DEFAULT_PERIOD), optionally limited to a daily HH:MM/HH:MM window",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runGrid,
}

var intervalCmd = &cobra.Command{
	Use:   "interval <text>",
	Short: "Resolve ISO 8601 interval text to its bounds",
	Args:  cobra.ExactArgs(1),
	RunE:  runInterval,
}

var timesCmd = &cobra.Command{
	Use:   "times <expr>",
	Short: "Expand a comma-separated times expression",
	Long:  "Expand dates and start/end/period triples into a sorted list of instants. Entries that cannot be resolved are logged and skipped.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTimes,
}

var durationCmd = &cobra.Command{
	Use:   "duration <text>",
	Short: "Parse an ISO 8601 duration, optionally applying it to a date",
	Args:  cobra.ExactArgs(1),
	RunE:  runDuration,
}

var mergeCmd = &cobra.Command{
	Use:   "merge <file|seq>...",
	Short: "Union or intersect sorted sequences",
	Long:  "Each argument is a JSON array file, '-' for a JSON array on stdin, or an inline comma-separated list of epoch milliseconds.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMerge,
}

var (
	gridWindow    string
	timesPeriod   string
	timesWindow   string
	durationApply string
	durationBack  bool
	durationMode  string
	mergeMode     string
)

func init() {
	rootCmd.AddCommand(gridCmd, intervalCmd, timesCmd, durationCmd, mergeCmd)

	gridCmd.Flags().StringVar(&gridWindow, "window", "", "Daily UTC clock window, HH:MM/HH:MM")

	timesCmd.Flags().StringVar(&timesPeriod, "period", "", "Period replacing the step of every range entry")
	timesCmd.Flags().StringVar(&timesWindow, "window", "", "Daily UTC clock window, HH:MM/HH:MM")

	durationCmd.Flags().StringVar(&durationApply, "apply", "", "Date to shift by the duration")
	durationCmd.Flags().BoolVar(&durationBack, "backward", false, "Subtract the duration instead of adding it")
	durationCmd.Flags().StringVar(&durationMode, "mode", "", "Calendar mode for --apply: utc or local (default from TIMEDIM_DATE_MODE)")

	mergeCmd.Flags().StringVar(&mergeMode, "mode", "union", "union or intersect")
}

func resolver() timeline.Resolver {
	return timeline.NewResolver(cfg.DefaultPeriod, cfg.MaxGridPoints, cfg.DateMode)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

func runGrid(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	def := timeline.Definition{Interval: args[0] + "/" + args[1], Window: gridWindow}
	if len(args) == 3 {
		def.Period = args[2]
	}
	res, err := resolver().Resolve(def)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res.Points)
}

func runInterval(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	rng, err := resolver().ParseInterval(args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), []int64{rng.Start.UnixMilli(), rng.End.UnixMilli()})
}

func runTimes(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	res, err := resolver().ParseTimes(args[0], timesPeriod, timesWindow)
	if err != nil {
		return err
	}
	for _, r := range res.Rejected {
		logger.Warn().Str("entry", r.Entry).Str("reason", r.Reason).Msg("entry skipped")
	}
	return printJSON(cmd.OutOrStdout(), res.Points)
}

func runDuration(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	d, err := resolver().ParseDuration(args[0])
	if err != nil {
		return err
	}
	if durationApply == "" {
		return printJSON(cmd.OutOrStdout(), map[string]any{"canonical": d.String(), "fields": d.Fields()})
	}

	mode := cfg.DateMode
	if durationMode != "" {
		if mode, err = datemath.ParseMode(durationMode); err != nil {
			return err
		}
	}
	from, err := timestamp.Parser{Location: mode.Location()}.Parse(durationApply)
	if err != nil {
		return err
	}
	to := datemath.Advance(from, d, mode)
	if durationBack {
		to = datemath.Retreat(from, d, mode)
	}
	return printJSON(cmd.OutOrStdout(), []int64{to.UnixMilli()})
}

func runMerge(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	mode, err := sequence.ParseMode(mergeMode)
	if err != nil {
		return err
	}

	seqs := make([][]int64, 0, len(args))
	for _, arg := range args {
		seq, err := readSequence(arg, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if !sequence.IsSorted(seq) {
			logger.Warn().Str("input", arg).Msg("input is not strictly ascending, sorting and removing duplicates")
			seq = sequence.Dedupe(seq)
		}
		seqs = append(seqs, seq)
	}

	out, err := sequence.Combine(mode, seqs...)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// readSequence loads one merge input: "-" reads a JSON array from stdin, an
// existing path reads a JSON array file, anything else is a comma list.
func readSequence(arg string, stdin io.Reader) ([]int64, error) {
	if arg == "-" {
		return decodeSequence(stdin, "stdin")
	}
	if f, err := os.Open(arg); err == nil {
		defer f.Close()
		return decodeSequence(f, arg)
	}

	var seq []int64
	for _, field := range strings.Split(arg, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("input %q: %q is not an epoch millisecond value", arg, field)
		}
		seq = append(seq, v)
	}
	return seq, nil
}

func decodeSequence(r io.Reader, name string) ([]int64, error) {
	var seq []int64
	if err := json.NewDecoder(r).Decode(&seq); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return seq, nil
}
