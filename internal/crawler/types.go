package crawler

import (
	"time"
)

// Content is the raw payload returned by a Transport.
type Content struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// PeriodIndex maps every date of one period to the locator of its document.
// Dates without a document are simply absent.
type PeriodIndex map[DateKey]string

// Lookup returns the locator for date, if any.
func (p PeriodIndex) Lookup(date DateKey) (string, bool) {
	loc, ok := p[date]
	return loc, ok && loc != ""
}

// RecordKind selects how a Record is persisted.
type RecordKind string

// Record kinds produced by the extraction pipeline.
const (
	RecordArticles RecordKind = "articles"
	RecordBinary   RecordKind = "binary"
)

// ArticleStatus describes how complete an extracted article is.
type ArticleStatus string

// Article statuses. A failed body fetch leaves the article in the record
// with an empty body instead of failing the whole date.
const (
	ArticleComplete    ArticleStatus = "complete"
	ArticleBodyMissing ArticleStatus = "body_missing"
)

// Article is one (category, title, body) tuple from the daily archive.
type Article struct {
	Category string        `json:"category"`
	Title    string        `json:"title"`
	URL      string        `json:"url"`
	Body     string        `json:"body"`
	Status   ArticleStatus `json:"status"`
}

// BinaryDocument is a downloaded file such as a PDF edition.
type BinaryDocument struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Record is the extraction output for one date.
type Record struct {
	Date     DateKey
	Kind     RecordKind
	Locator  string
	Articles []Article
	Document *BinaryDocument
}

// Empty reports whether the record carries nothing worth persisting.
func (r Record) Empty() bool {
	switch r.Kind {
	case RecordArticles:
		return len(r.Articles) == 0
	case RecordBinary:
		return r.Document == nil || len(r.Document.Body) == 0
	default:
		return true
	}
}

// MissingBodies counts articles whose body fetch failed.
func (r Record) MissingBodies() int {
	n := 0
	for _, a := range r.Articles {
		if a.Status == ArticleBodyMissing {
			n++
		}
	}
	return n
}

// StoreOutcome is the result of a sink write.
type StoreOutcome string

// Sink outcomes. A Failure is reported through the returned error.
const (
	OutcomeStored        StoreOutcome = "stored"
	OutcomeAlreadyExists StoreOutcome = "already_exists"
	OutcomeFailed        StoreOutcome = "failed"
)

// DateOutcome is the settled result of processing one date.
type DateOutcome string

// Per-date outcomes tallied by the orchestrator.
const (
	DateStored        DateOutcome = "stored"
	DateAlreadyExists DateOutcome = "already_exists"
	DateSkipped       DateOutcome = "skipped"
	DateFailed        DateOutcome = "failed"
)

// RunBudget bounds a single run. Zero values disable the corresponding limit.
type RunBudget struct {
	MaxItems    int
	MaxDuration time.Duration
}

// RunParams are the per-run knobs recognized by the orchestrator.
type RunParams struct {
	Start         DateKey
	End           DateKey
	Direction     Direction
	Budget        RunBudget
	UseCheckpoint bool
	DateDelay     time.Duration
}

// RunCounters tallies settled dates. Succeeded is Stored plus AlreadyExisted.
type RunCounters struct {
	Succeeded        int `json:"succeeded"`
	Stored           int `json:"stored"`
	AlreadyExisted   int `json:"already_existed"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
	CheckpointErrors int `json:"checkpoint_errors"`
}

// Settled is the number of dates that count against the item budget.
func (c RunCounters) Settled() int {
	return c.Succeeded + c.Skipped + c.Failed
}

func (c *RunCounters) observe(outcome DateOutcome) {
	switch outcome {
	case DateStored:
		c.Succeeded++
		c.Stored++
	case DateAlreadyExists:
		c.Succeeded++
		c.AlreadyExisted++
	case DateSkipped:
		c.Skipped++
	case DateFailed:
		c.Failed++
	}
}

// HaltReason explains why a run stopped.
type HaltReason string

// Halt reasons. None of them is an error.
const (
	HaltRunning        HaltReason = ""
	HaltRangeExhausted HaltReason = "range_exhausted"
	HaltMaxItems       HaltReason = "max_items"
	HaltMaxDuration    HaltReason = "max_duration"
	HaltCanceled       HaltReason = "canceled"
)

// RunReport is the monitoring view of a run, updated after every date.
type RunReport struct {
	RunID       string      `json:"run_id"`
	Mode        string      `json:"mode"`
	Direction   Direction   `json:"direction"`
	StartedAt   time.Time   `json:"started_at"`
	Elapsed     Duration    `json:"elapsed"`
	Start       string      `json:"start"`
	End         string      `json:"end"`
	Cursor      string      `json:"cursor"`
	LastSuccess string      `json:"last_success,omitempty"`
	Resumed     bool        `json:"resumed"`
	Counters    RunCounters `json:"counters"`
	Halt        HaltReason  `json:"halt_reason,omitempty"`
}

// Duration marshals as a Go duration string.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
