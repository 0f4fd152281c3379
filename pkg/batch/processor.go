package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/denizumutdereli/npsrisk/pkg/risk"
	"github.com/denizumutdereli/npsrisk/pkg/textnorm"
)

// Column selectors for Columns.Description. "(nenhuma)" and "none" are
// accepted as ColumnNone.
const (
	ColumnAuto = ""
	ColumnNone = "-"
)

const (
	DefaultGradeColumn       = "Grau de Risco"
	DefaultExplanationColumn = "Explicação do Sentimento"
)

// Title fragments used to find input columns when none are named.
var (
	descriptionHints = []string{"descricao"}
	commentHints     = []string{"comentario"}
)

var rowNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("npsrisk/batch-row"))

// Row is one description/comment pair.
type Row struct {
	Description string `json:"description" msgpack:"description"`
	Comment     string `json:"comment" msgpack:"comment"`
}

// Key identifies a row by content; identical pairs share a key.
func (r Row) Key() string {
	return uuid.NewSHA1(rowNamespace, []byte(r.Description+"\x00"+r.Comment)).String()
}

// Columns names the input and output columns of a dataset run.
type Columns struct {
	// Description is a column title, ColumnAuto to detect it or ColumnNone
	// to score comments alone.
	Description string
	// Comment is a column title or ColumnAuto.
	Comment string
	// Output column titles; empty selects the defaults.
	Grade       string
	Explanation string
}

// GradeCount is one line of a run summary.
type GradeCount struct {
	Grade string `json:"grade" msgpack:"grade"`
	Count int    `json:"count" msgpack:"count"`
}

// Report is the outcome of one run.
type Report struct {
	RunID             string             `json:"runId" msgpack:"runId"`
	Rows              int                `json:"rows" msgpack:"rows"`
	Unique            int                `json:"unique" msgpack:"unique"`
	Results           []risk.Result      `json:"results" msgpack:"results"`
	Counts            map[risk.Grade]int `json:"-" msgpack:"-"`
	Elapsed           time.Duration      `json:"-" msgpack:"-"`
	DescriptionColumn string             `json:"descriptionColumn,omitempty" msgpack:"descriptionColumn,omitempty"`
	CommentColumn     string             `json:"commentColumn,omitempty" msgpack:"commentColumn,omitempty"`
}

// Summary lists grade counts from most to least severe, zeros included.
func (r *Report) Summary() []GradeCount {
	out := make([]GradeCount, 0, 4)
	for _, g := range risk.Grades() {
		out = append(out, GradeCount{Grade: g.String(), Count: r.Counts[g]})
	}
	return out
}

// Progress is called after each row with the number of rows done. It may
// be called from several goroutines at once.
type Progress func(done, total int)

// Processor grades rows in parallel with a bounded number of workers.
type Processor struct {
	analyzer *risk.Analyzer
	workers  int
	sanitize bool
	progress Progress
	onDone   func(*Report)
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers bounds concurrent analyses. n <= 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Processor) { p.workers = n }
}

// WithSanitize strips markup and control runes from cells before scoring.
func WithSanitize(on bool) Option {
	return func(p *Processor) { p.sanitize = on }
}

// WithProgress registers fn to observe progress.
func WithProgress(fn Progress) Option {
	return func(p *Processor) { p.progress = fn }
}

// WithReportHook registers fn to observe finished runs.
func WithReportHook(fn func(*Report)) Option {
	return func(p *Processor) { p.onDone = fn }
}

// NewProcessor creates a Processor over analyzer.
func NewProcessor(analyzer *risk.Analyzer, opts ...Option) *Processor {
	p := &Processor{analyzer: analyzer}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	return p
}

// Analyze grades rows and returns results in row order. Identical rows
// are analysed once. It fails only when ctx is cancelled.
func (p *Processor) Analyze(ctx context.Context, rows []Row) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:   uuid.NewString(),
		Rows:    len(rows),
		Results: make([]risk.Result, len(rows)),
		Counts:  make(map[risk.Grade]int, 4),
	}

	var (
		group singleflight.Group
		mu    sync.Mutex
		cache = make(map[string]risk.Result, len(rows))
		done  atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if p.sanitize {
				row = Row{Description: textnorm.Sanitize(row.Description), Comment: textnorm.Sanitize(row.Comment)}
			}
			key := row.Key()

			mu.Lock()
			res, hit := cache[key]
			mu.Unlock()
			if !hit {
				v, _, _ := group.Do(key, func() (any, error) {
					r := p.analyzer.Analyze(gctx, row.Description, row.Comment)
					mu.Lock()
					cache[key] = r
					mu.Unlock()
					return r, nil
				})
				res = v.(risk.Result)
			}
			report.Results[i] = res

			if p.progress != nil {
				p.progress(int(done.Add(1)), len(rows))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s: %w", report.RunID, err)
	}

	for _, r := range report.Results {
		report.Counts[r.Grade]++
	}
	report.Unique = len(cache)
	report.Elapsed = time.Since(start)
	if p.onDone != nil {
		p.onDone(report)
	}
	return report, nil
}

// Run grades every row of ds and appends the grade and explanation
// columns. ds is modified only when the run succeeds.
func (p *Processor) Run(ctx context.Context, ds *Dataset, cols Columns) (*Report, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	gradeCol, explCol := cols.Grade, cols.Explanation
	if gradeCol == "" {
		gradeCol = DefaultGradeColumn
	}
	if explCol == "" {
		explCol = DefaultExplanationColumn
	}
	for _, name := range []string{gradeCol, explCol} {
		if ds.Index(name) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrColumnExists, name)
		}
	}
	if textnorm.Normalize(gradeCol) == textnorm.Normalize(explCol) {
		return nil, fmt.Errorf("%w: %q and %q name the same column", ErrColumnExists, gradeCol, explCol)
	}

	rows, descIdx, commentIdx, err := inputs(ds, cols)
	if err != nil {
		return nil, err
	}

	report, err := p.Analyze(ctx, rows)
	if err != nil {
		return nil, err
	}
	report.CommentColumn = ds.Header[commentIdx]
	if descIdx >= 0 {
		report.DescriptionColumn = ds.Header[descIdx]
	}

	grades := make([]string, len(rows))
	expls := make([]string, len(rows))
	for i, r := range report.Results {
		grades[i] = r.Grade.String()
		expls[i] = r.Explanation
	}
	if err := ds.AppendColumn(gradeCol, grades); err != nil {
		return nil, err
	}
	if err := ds.AppendColumn(explCol, expls); err != nil {
		return nil, err
	}
	return report, nil
}

// ResolveRows locates the description and comment columns named by cols,
// detecting them when unnamed, and returns the inputs of every record.
func ResolveRows(ds *Dataset, cols Columns) ([]Row, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	rows, _, _, err := inputs(ds, cols)
	return rows, err
}

func inputs(ds *Dataset, cols Columns) (rows []Row, descIdx, commentIdx int, err error) {
	commentIdx, err = resolve(ds, cols.Comment, commentHints, false)
	if err != nil {
		return nil, -1, -1, fmt.Errorf("comment %w", err)
	}
	descIdx, err = resolve(ds, cols.Description, descriptionHints, true)
	if err != nil {
		return nil, -1, -1, fmt.Errorf("description %w", err)
	}

	rows = make([]Row, len(ds.Rows))
	for i, rec := range ds.Rows {
		rows[i].Comment = rec[commentIdx]
		if descIdx >= 0 {
			rows[i].Description = rec[descIdx]
		}
	}
	return rows, descIdx, commentIdx, nil
}

// resolve finds a column by name or hints. optional columns that cannot be
// detected resolve to -1 without error.
func resolve(ds *Dataset, name string, hints []string, optional bool) (int, error) {
	if isNone(name) {
		name = ColumnNone
	}
	switch name {
	case ColumnNone:
		if optional {
			return -1, nil
		}
		return -1, fmt.Errorf("%w: column is required", ErrColumnNotFound)
	case ColumnAuto:
		if i := ds.Detect(hints...); i >= 0 {
			return i, nil
		}
		if optional {
			return -1, nil
		}
		return -1, fmt.Errorf("%w: no column title contains %q", ErrColumnNotFound, hints)
	default:
		if i := ds.Index(name); i >= 0 {
			return i, nil
		}
		return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
}

func isNone(name string) bool {
	switch textnorm.Normalize(name) {
	case ColumnNone, "(nenhuma)", "(none)", "none":
		return true
	}
	return false
}
