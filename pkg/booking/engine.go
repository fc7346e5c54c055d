package booking

// EngineOption configures the engine at construction.
type EngineOption func(*Engine)

// Engine bundles the five collaborating services over one Store.
type Engine struct {
	Calendar      *Calendar
	Ledger        *Ledger
	Holds         *Holds
	Scheduler     *Scheduler
	Cancellations *Cancellations

	logger   OperationLogger
	notifier Notifier
}

// WithOperationLogger wires a logger that receives callbacks for every
// state-changing operation.
func WithOperationLogger(logger OperationLogger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// WithNotifier wires the outbound notification sink.
func WithNotifier(notifier Notifier) EngineOption {
	return func(engine *Engine) {
		engine.notifier = notifier
	}
}

// NewEngine wires the full booking engine.
func NewEngine(store Store, now func() int64, config Config, options ...EngineOption) (*Engine, error) {
	engine := &Engine{}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	ledger, err := NewLedger(store, now)
	if err != nil {
		return nil, err
	}
	ledger.logger = engine.logger
	ledger.notifier = engine.notifier
	calendar, err := NewCalendar(store)
	if err != nil {
		return nil, err
	}
	holds, err := NewHolds(ledger, store, now, config)
	if err != nil {
		return nil, err
	}
	holds.logger = engine.logger
	scheduler, err := NewScheduler(holds, calendar, store, config)
	if err != nil {
		return nil, err
	}
	scheduler.logger = engine.logger
	cancellations, err := NewCancellations(ledger, store, now, config)
	if err != nil {
		return nil, err
	}
	cancellations.logger = engine.logger
	engine.Calendar = calendar
	engine.Ledger = ledger
	engine.Holds = holds
	engine.Scheduler = scheduler
	engine.Cancellations = cancellations
	return engine, nil
}
