package main

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"meshc/internal/trace"
)

// traceOptions are the persistent trace flags of the root command.
type traceOptions struct {
	output    string
	level     trace.Level
	mode      trace.StorageMode
	format    trace.Format
	ringSize  int
	heartbeat time.Duration
}

func readTraceOptions(cmd *cobra.Command) (traceOptions, error) {
	pf := cmd.Root().PersistentFlags()
	var (
		opts              traceOptions
		level, mode, frmt string
		errs              []error
	)
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	opts.output, _ = pf.GetString("trace")
	level, _ = pf.GetString("trace-level")
	mode, _ = pf.GetString("trace-mode")
	frmt, _ = pf.GetString("trace-format")
	opts.ringSize, _ = pf.GetInt("trace-ring-size")
	opts.heartbeat, _ = pf.GetDuration("trace-heartbeat")

	var err error
	opts.level, err = trace.ParseLevel(level)
	collect(err)
	opts.mode, err = trace.ParseMode(mode)
	collect(err)
	opts.format, err = trace.ParseFormat(frmt)
	collect(err)
	if opts.ringSize < 0 {
		collect(fmt.Errorf("trace-ring-size must not be negative, got %d", opts.ringSize))
	}
	return opts, errors.Join(errs...)
}

// setupTracing attaches the tracer selected by the trace flags to the
// command context and returns its cleanup.
func setupTracing(cmd *cobra.Command) (func(), error) {
	opts, err := readTraceOptions(cmd)
	if err != nil {
		return nil, err
	}
	if opts.level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}
	tracer, err := trace.New(trace.Config{
		Level:      opts.level,
		Mode:       opts.mode,
		Format:     opts.format,
		OutputPath: cmp.Or(opts.output, "-"),
		RingSize:   opts.ringSize,
		Heartbeat:  opts.heartbeat,
	})
	if err != nil {
		return nil, err
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	activeTracer = tracer

	heartbeat := trace.StartHeartbeat(tracer, opts.heartbeat, func() string {
		return fmt.Sprintf("goroutines=%d", runtime.NumGoroutine())
	})
	errOut := cmd.ErrOrStderr()
	return func() {
		activeTracer = nil
		heartbeat.Stop()
		if err := errors.Join(tracer.Flush(), tracer.Close()); err != nil {
			fmt.Fprintf(errOut, "trace: %v\n", err)
		}
	}, nil
}

// activeTracer is the tracer of the running command while it is open.
var activeTracer trace.Tracer

// ringDumpEvents bounds how much of the ring a failed command prints.
const ringDumpEvents = 64

// dumpTraceRings writes the tail of every in-memory trace ring to w.
func dumpTraceRings(w io.Writer) {
	for _, r := range trace.Rings(activeTracer) {
		fmt.Fprintf(w, "trace: last %d of %d events\n", min(ringDumpEvents, r.Len()), r.Len())
		if err := r.Dump(w, trace.FormatText, ringDumpEvents); err != nil {
			fmt.Fprintf(w, "trace: dump error: %v\n", err)
			return
		}
	}
}
