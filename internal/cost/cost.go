// Package cost converts model token usage into USD and keeps running
// per-day totals for budget monitoring.
package cost

import (
	"sync"
	"time"
)

// price holds per-token USD rates.
type price struct {
	input  float64
	output float64
}

// Per-million-token USD pricing. Unknown models fall back to
// fallbackModel so a new deployment never records zero cost silently.
var pricing = map[string]price{
	"gpt-4o-mini":               {input: 0.15 / 1e6, output: 0.60 / 1e6},
	"gpt-4o":                    {input: 2.50 / 1e6, output: 10.00 / 1e6},
	"gpt-3.5-turbo":             {input: 0.50 / 1e6, output: 1.50 / 1e6},
	"claude-sonnet-4-20250514":  {input: 3.00 / 1e6, output: 15.00 / 1e6},
	"claude-3-5-haiku-20241022": {input: 0.80 / 1e6, output: 4.00 / 1e6},
}

const fallbackModel = "gpt-4o-mini"

// Usage describes one recorded model call.
type Usage struct {
	Time         time.Time
	Model        string
	InputTokens  int
	OutputTokens int
	USD          float64
}

// Sink receives every recorded usage, typically for persistence.
// Implementations must not block for long; Record holds no lock while
// calling the sink.
type Sink interface {
	RecordUsage(u Usage) error
}

// Summary is a snapshot of accumulated spend.
type Summary struct {
	TotalUSD             float64 `json:"total_usd"`
	DailyUSD             float64 `json:"daily_usd"`
	MonthlyUSD           float64 `json:"monthly_usd"`
	Requests             int64   `json:"requests"`
	AveragePerRequestUSD float64 `json:"average_per_request_usd"`
}

// Accountant tracks spend in memory, keyed by calendar day. All
// methods are safe for concurrent use.
type Accountant struct {
	mu       sync.Mutex
	daily    map[string]float64 // YYYY-MM-DD -> USD
	usage    map[string]int64   // YYYY-MM-DD -> request count
	total    float64
	requests int64
	sink     Sink
	now      func() time.Time
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithSink forwards every recorded usage to s. Sink errors are
// returned by Record but never abort the in-memory accounting.
func WithSink(s Sink) Option {
	return func(a *Accountant) { a.sink = s }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// New creates an Accountant.
func New(opts ...Option) *Accountant {
	a := &Accountant{
		daily: make(map[string]float64),
		usage: make(map[string]int64),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rate returns the per-token USD rates for model, falling back to the
// default model when the name is unknown.
func Rate(model string) (inputPerToken, outputPerToken float64) {
	p, ok := pricing[model]
	if !ok {
		p = pricing[fallbackModel]
	}
	return p.input, p.output
}

// Known reports whether model has an explicit price entry.
func Known(model string) bool {
	_, ok := pricing[model]
	return ok
}

// Record accounts one model call and returns its USD cost. The cost is
// always accounted in memory; any sink error is returned afterwards.
func (a *Accountant) Record(model string, inputTokens, outputTokens int) (float64, error) {
	in, out := Rate(model)
	usd := float64(inputTokens)*in + float64(outputTokens)*out

	a.mu.Lock()
	day := a.now().Format("2006-01-02")
	a.daily[day] += usd
	a.usage[day]++
	a.total += usd
	a.requests++
	a.mu.Unlock()

	if a.sink != nil {
		u := Usage{
			Time:         a.now(),
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			USD:          usd,
		}
		if err := a.sink.RecordUsage(u); err != nil {
			return usd, err
		}
	}
	return usd, nil
}

// Snapshot returns the accumulated spend, with daily and monthly
// totals relative to the current clock.
func (a *Accountant) Snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	today := now.Format("2006-01-02")
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02")

	var monthly float64
	for day, usd := range a.daily {
		if day >= monthStart {
			monthly += usd
		}
	}

	s := Summary{
		TotalUSD:   a.total,
		DailyUSD:   a.daily[today],
		MonthlyUSD: monthly,
		Requests:   a.requests,
	}
	// The average is over today's records only, so a fresh day starts
	// at zero instead of carrying history.
	if n := a.usage[today]; n > 0 {
		s.AveragePerRequestUSD = a.daily[today] / float64(n)
	}
	return s
}

// DailyCost returns the spend recorded for a YYYY-MM-DD day.
func (a *Accountant) DailyCost(day string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.daily[day]
}
