package main

import (
	"context"
	"fmt"
	"log"

	"github.com/denizumutdereli/npsrisk/pkg/batch"
	"github.com/denizumutdereli/npsrisk/pkg/classifier"
	"github.com/denizumutdereli/npsrisk/pkg/core"
	"github.com/denizumutdereli/npsrisk/pkg/lexicon"
	"github.com/denizumutdereli/npsrisk/pkg/metrics"
	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

// app bundles the components every subcommand shares.
type app struct {
	cfg       *core.Config
	collector *metrics.Collector
	analyzer  *risk.Analyzer
	processor *batch.Processor
}

// newApp wires lexicon, engine, optional external classifier and batch
// processor from a validated config. extra options are appended to the
// processor's.
func newApp(ctx context.Context, cfg *core.Config, extra ...batch.Option) (*app, error) {
	if err := core.SetMaxCommentBytes(cfg.Security.MaxCommentBytes); err != nil {
		return nil, fmt.Errorf("invalid comment limit: %w", err)
	}

	lex, err := lexicon.Load(cfg.Lexicon.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load lexicon: %w", err)
	}
	policy, err := risk.ParseOverlapPolicy(cfg.Lexicon.Overlap)
	if err != nil {
		return nil, err
	}
	engine := risk.NewEngine(lex, risk.WithOverlapPolicy(policy))
	stats := lex.Stats()
	log.Printf("Lexicon %s loaded (%d risk, %d positive terms, overlap=%s)", stats.Name, stats.Risk, stats.Positive, policy)

	collector := metrics.New()
	opts := []risk.AnalyzerOption{
		risk.WithFallbackHook(func(reason risk.FallbackReason, err error) {
			collector.RecordFallback(reason, err)
			log.Printf("⚠ external classifier fallback (%s): %v", reason, err)
		}),
	}

	client, err := classifier.New(ctx, cfg.ClassifierSettings(), classifier.WithObserver(collector.RecordClassifierCall))
	switch {
	case err != nil:
		log.Printf("⚠ External classifier disabled, using lexicon heuristic only: %v", err)
	case client != nil:
		opts = append(opts, risk.WithClassifier(client))
		log.Printf("External classifier enabled (provider=%s, model=%s)", client.Provider(), cfg.Classifier.Model)
	default:
		log.Println("External classifier disabled (enable with --provider or NPSRISK_CLASSIFIER_PROVIDER)")
	}

	analyzer := risk.NewAnalyzer(engine, opts...)

	popts := []batch.Option{
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithSanitize(cfg.Batch.StripMarkup),
		batch.WithReportHook(func(r *batch.Report) {
			collector.RecordBatch(r.Counts, r.Elapsed)
		}),
	}
	processor := batch.NewProcessor(analyzer, append(popts, extra...)...)

	return &app{cfg: cfg, collector: collector, analyzer: analyzer, processor: processor}, nil
}
