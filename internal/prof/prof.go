// Package prof drives the Go runtime profilers for one CLI invocation.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Config names the output file of each profiler. Empty paths disable it.
type Config struct {
	CPU   string
	Heap  string
	Trace string
}

// Session is a set of running profilers. Stop is idempotent.
type Session struct {
	cfg       Config
	cpuFile   *os.File
	traceFile *os.File
	stopped   bool
}

// Start enables the profilers cfg selects. On error nothing is left
// running.
func Start(cfg Config) (*Session, error) {
	s := &Session{cfg: cfg}
	if cfg.CPU != "" {
		f, err := os.Create(cfg.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		s.cpuFile = f
	}
	if cfg.Trace != "" {
		f, err := os.Create(cfg.Trace)
		if err != nil {
			s.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		s.traceFile = f
	}
	return s, nil
}

func (s *Session) stopCPU() error {
	if s.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := s.cpuFile.Close()
	s.cpuFile = nil
	return err
}

// Stop ends the trace and CPU profile, then writes the heap profile.
func (s *Session) Stop() error {
	if s == nil || s.stopped {
		return nil
	}
	s.stopped = true
	var errs []error
	if s.traceFile != nil {
		trace.Stop()
		errs = append(errs, s.traceFile.Close())
		s.traceFile = nil
	}
	errs = append(errs, s.stopCPU())
	if s.cfg.Heap != "" {
		errs = append(errs, writeHeap(s.cfg.Heap))
	}
	return errors.Join(errs...)
}

func writeHeap(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}
