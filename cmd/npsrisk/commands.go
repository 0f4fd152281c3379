package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/denizumutdereli/npsrisk/pkg/batch"
	"github.com/denizumutdereli/npsrisk/pkg/core"
	"github.com/denizumutdereli/npsrisk/pkg/lexicon"
	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

// ── analyze ─────────────────────────────────────────────

func newAnalyzeCmd(config func() *core.Config) *cobra.Command {
	var (
		description string
		explain     bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [comment...]",
		Short: "Grade one comment (use \"-\" to read it from stdin)",
		Example: `  npsrisk analyze "Péssimo atendimento, nunca mais volto"
  npsrisk analyze -d "Revisão" --explain "Demorou demais"
  echo "Ótimo serviço" | npsrisk analyze -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			comment, err := commentFromArgs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, config())
			if err != nil {
				return err
			}
			if err := core.ValidateComment(description); err != nil {
				return fmt.Errorf("description: %w", err)
			}
			if err := core.ValidateComment(comment); err != nil {
				return fmt.Errorf("comment: %w", err)
			}

			res := a.analyzer.Analyze(ctx, description, comment)
			if explain && res.Assessment == nil && res.Source != risk.SourceNoInput {
				as := a.analyzer.Engine().Assess(description, comment)
				res.Assessment = &as
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&description, "description", "d", "", "Service or product description scored with the comment")
	f.BoolVar(&explain, "explain", false, "Print the heuristic score breakdown")
	f.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func commentFromArgs(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func printResult(w io.Writer, res risk.Result) {
	fmt.Fprintf(w, "Grau de Risco: %s\n", res.Grade)
	fmt.Fprintf(w, "Explicação:    %s\n", res.Explanation)
	fmt.Fprintf(w, "Origem:        %s\n", res.Source)

	as := res.Assessment
	if as == nil {
		return
	}
	b := as.Breakdown
	fmt.Fprintf(w, "\nScore: %.2f (heuristic grade %s)\n", as.Score, as.Grade)
	fmt.Fprintf(w, "Risk %.2f  Satisfaction %.2f  Caps x%.2f  Punctuation x%.2f  Sarcasm x%.2f\n",
		b.RiskScore, b.SatisfactionScore, b.CapsFactor, b.PunctuationFactor, b.SarcasmFactor)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LIST\tTERM\tWEIGHT\tPOS")
	for _, occ := range b.Negative {
		fmt.Fprintf(tw, "risk\t%s\t%.2f\t%d\n", occ.Term, occ.Weight, occ.Position)
	}
	for _, occ := range b.Positive {
		fmt.Fprintf(tw, "positive\t%s\t%.2f\t%d\n", occ.Term, occ.Weight, occ.Position)
	}
	tw.Flush()
}

// ── batch ───────────────────────────────────────────────

func newBatchCmd(o *core.CLIOverrides, config func() *core.Config) *cobra.Command {
	var (
		input    string
		output   string
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Grade every comment of a CSV export and append the result columns",
		Example: `  npsrisk batch -i nps.csv -o nps_risco.csv --header-row 3
  npsrisk batch --provider openai --model gpt-4o-mini < nps.csv > nps_risco.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in, closeIn, err := openInput(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeIn()

			var extra []batch.Option
			if progress {
				extra = append(extra, batch.WithProgress(progressPrinter(cmd.ErrOrStderr())))
			}
			return runBatch(ctx, config(), in, output, cmd.OutOrStdout(), cmd.ErrOrStderr(), extra...)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "-", "CSV file to read (\"-\" for stdin)")
	f.StringVarP(&output, "output", "o", "-", "CSV file to write (\"-\" for stdout)")
	f.BoolVar(&progress, "progress", true, "Report progress on stderr")
	o.Workers = f.Int("workers", 0, "Concurrent analyses (0 = GOMAXPROCS)")
	o.MaxRows = f.Int("max-rows", 0, "Reject datasets with more rows")
	o.HeaderRow = f.Int("header-row", 0, "1-based line holding the column titles")
	o.Delimiter = f.String("delimiter", "", "CSV field delimiter")
	o.DescriptionColumn = f.String("description-column", "", "Description column (\"(nenhuma)\" to skip, empty to detect)")
	o.CommentColumn = f.String("comment-column", "", "Comment column (empty to detect)")
	o.GradeColumn = f.String("grade-column", "", "Name of the appended grade column")
	o.ExplanationColumn = f.String("explanation-column", "", "Name of the appended explanation column")
	o.StripMarkup = f.Bool("strip-markup", false, "Strip HTML markup and emoji from cells before analysis")
	return cmd
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// runBatch reads a dataset, grades it and writes it to output ("-" means
// stdout). The summary goes to summary.
func runBatch(ctx context.Context, cfg *core.Config, in io.Reader, output string, stdout, summary io.Writer, extra ...batch.Option) error {
	a, err := newApp(ctx, cfg, extra...)
	if err != nil {
		return err
	}

	opts := cfg.ReadOptions()
	ds, err := batch.ReadCSV(in, opts)
	if err != nil {
		return err
	}

	report, err := a.processor.Run(ctx, ds, cfg.Columns())
	if err != nil {
		return err
	}

	out := stdout
	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := batch.WriteCSV(out, ds, opts.Delimiter); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	fmt.Fprintf(summary, "Run %s: %d rows (%d unique) in %v\n", report.RunID, report.Rows, report.Unique, report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(summary, "Columns: description=%q comment=%q\n", report.DescriptionColumn, report.CommentColumn)
	for _, gc := range report.Summary() {
		fmt.Fprintf(summary, "  %-10s %d\n", gc.Grade, gc.Count)
	}
	return nil
}

// progressPrinter reports roughly every 5% of the run.
func progressPrinter(w io.Writer) batch.Progress {
	return func(done, total int) {
		step := total / 20
		if step < 1 {
			step = 1
		}
		if done%step == 0 || done == total {
			fmt.Fprintf(w, "\rAnalysed %d/%d", done, total)
			if done == total {
				fmt.Fprintln(w)
			}
		}
	}
}

// ── lexicon ─────────────────────────────────────────────

func newLexiconCmd(config func() *core.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "lexicon",
		Short: "Show the active lexicon's list sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			lex, err := lexicon.Load(cfg.Lexicon.Path)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), lex.Stats(), cfg.Lexicon.Overlap)
			return nil
		},
	}
}

func printStats(w io.Writer, s lexicon.Stats, overlap string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Lexicon\t%s\n", s.Name)
	fmt.Fprintf(tw, "Overlap policy\t%s\n", overlap)
	fmt.Fprintf(tw, "Risk terms\t%d\n", s.Risk)
	fmt.Fprintf(tw, "Positive terms\t%d\n", s.Positive)
	fmt.Fprintf(tw, "Intensifiers\t%d\n", s.Intensifiers)
	fmt.Fprintf(tw, "Negators\t%d\n", s.Negators)
	fmt.Fprintf(tw, "Sarcasm markers\t%d\n", s.Sarcasm)
	tw.Flush()
}
