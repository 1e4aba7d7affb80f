package rtkernel

// kernelOptions holds configuration for Kernel creation. Defaults translate
// fixed compile-time constants (task/event/mutex table sizes, lowest
// priority value, event signal-miss cap) into simulator values.
type kernelOptions struct {
	maxTasks           int
	maxEvents          int
	maxMutexes         int
	lowestPriority     Priority
	maxEventSignalMiss int
	tickSource         TickSource
	logger             Logger
	metricsEnabled     bool
}

// --- Kernel Options ---

// Option configures a Kernel instance.
type Option interface {
	applyKernel(*kernelOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*kernelOptions) error
}

func (o *optionImpl) applyKernel(opts *kernelOptions) error {
	return o.applyFunc(opts)
}

// WithMaxTasks sets the task table's fixed capacity.
func WithMaxTasks(n int) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		if n <= 0 {
			return newKernelError("WithMaxTasks", ErrInvalidArg)
		}
		opts.maxTasks = n
		return nil
	}}
}

// WithMaxEvents sets the event table's fixed capacity.
func WithMaxEvents(n int) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		if n <= 0 {
			return newKernelError("WithMaxEvents", ErrInvalidArg)
		}
		opts.maxEvents = n
		return nil
	}}
}

// WithMaxMutexes sets the mutex table's fixed capacity.
func WithMaxMutexes(n int) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		if n <= 0 {
			return newKernelError("WithMaxMutexes", ErrInvalidArg)
		}
		opts.maxMutexes = n
		return nil
	}}
}

// WithLowestPriority sets the numerically largest (least favourable)
// priority value a task may hold.
func WithLowestPriority(p Priority) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		opts.lowestPriority = p
		return nil
	}}
}

// WithMaxEventSignalMiss sets the saturating cap on an event's pending
// signal counter. 0 means unbounded.
func WithMaxEventSignalMiss(n int) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		if n < 0 {
			return newKernelError("WithMaxEventSignalMiss", ErrInvalidArg)
		}
		opts.maxEventSignalMiss = n
		return nil
	}}
}

// WithTickSource supplies the periodic tick source, standing in for the
// hardware timer interrupt. The dispatcher drains its pending ticks on
// every pass of its loop, and waits on it when no task is READY. Defaults
// to a real-time ticker (see NewTimerTickSource).
func WithTickSource(ts TickSource) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		opts.tickSource = ts
		return nil
	}}
}

// WithLogger supplies a structured Logger. Defaults to a no-op logger.
func WithLogger(l Logger) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithMetrics enables runtime metrics collection (see Kernel.Metrics).
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveOptions applies Option instances over sane defaults.
func resolveOptions(opts []Option) (*kernelOptions, error) {
	cfg := &kernelOptions{
		maxTasks:           16,
		maxEvents:          16,
		maxMutexes:         8,
		lowestPriority:     10,
		maxEventSignalMiss: 0,
		logger:             NewNoOpLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyKernel(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.tickSource == nil {
		cfg.tickSource = NewTimerTickSource(defaultTickPeriod)
	}
	return cfg, nil
}
