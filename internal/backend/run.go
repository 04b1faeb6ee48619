package backend

import (
	"errors"

	"meshc/internal/diag"
	"meshc/internal/image"
	"meshc/internal/mem"
	"meshc/internal/trace"
)

func (f *Function) invocable() error {
	switch f.state {
	case Closed:
		return &diag.UsageError{Code: diag.RunClosed, Name: f.name, Err: ErrClosed}
	case Initialized:
		return nil
	}
	return diag.Usage(diag.RunNotInitialized, f.name, "initialized", f.state.String())
}

func (f *Function) call(c image.Callable) error {
	idx := f.timer.Begin("run")
	_, span := trace.Start(f.ctx, trace.ScopePass, "run")
	err := c.Call()
	if err != nil {
		err = &diag.UsageError{Code: diag.RunFault, Name: c.Name(), Err: err}
		span.WithExtra("error", err.Error())
	}
	span.End(c.Name())
	f.timer.End(idx, "")
	f.metrics.RunFinished(err)
	return err
}

// Run invokes the entry point of the last Init. It fails with RUN2001
// when arguments were rebound since, and with RUN2002 after Close.
func (f *Function) Run() error {
	if err := f.invocable(); err != nil {
		return err
	}
	return f.call(f.entry)
}

// RunSafe runs Init first when the function is not initialized.
func (f *Function) RunSafe() error {
	if f.state == Constructed {
		if _, err := f.Init(); err != nil {
			return err
		}
	}
	return f.Run()
}

// Close runs <name>_deinit, frees temporaries, index mappings and the
// memory owned for bound actuals, and zeroes their slots. Closing twice is
// a no-op.
func (f *Function) Close() error {
	if f.state == Closed {
		return nil
	}
	idx := f.timer.Begin("close")
	defer f.timer.End(idx, "")
	_, span := trace.Start(f.ctx, trace.ScopePass, "close")
	defer span.End(f.name)

	errs := []error{f.teardown()}
	for name := range f.owned {
		errs = append(errs, f.release(name))
	}
	for _, slots := range f.externSlots {
		for _, a := range slots {
			f.space.StoreAddr(a, mem.Null)
		}
	}
	clear(f.args)
	clear(f.globals)
	f.harness = nil
	f.state = Closed
	return errors.Join(errs...)
}
