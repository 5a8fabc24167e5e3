// Command qbank-review parses question text, lets an author approve a subset
// in the terminal and saves the approved batch to a question pool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qbank/internal/db"
	"qbank/internal/generate"
	"qbank/internal/pool"
	"qbank/internal/review"
	"qbank/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// isTerminal reports whether a writer is a TTY.
var isTerminal = defaultIsTerminal

type options struct {
	file       string
	prompt     string
	count      int
	options    int
	difficulty string
	poolID     int64
	server     string
	token      string
	dsn        string
	generate   bool
	model      string
	shuffle    bool
	approveAll bool
	noColor    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	_ = godotenv.Load()

	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	ctx := context.Background()
	src, err := loadSource(ctx, opts, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "input: %v\n", err)
		return 1
	}
	res, err := src.Run()
	if err != nil {
		fmt.Fprintf(stderr, "%v (%s)\n", err, res.Report.Summary())
		return 1
	}

	interactive := isTerminal(stdout)
	if !interactive && !opts.approveAll {
		fmt.Fprint(stdout, tui.RenderPlain(res.Report, res.Candidates))
		return 0
	}

	saver, closeSaver, err := openSaver(ctx, opts)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer closeSaver()
	committer := review.NewBatchCommitter(saver)

	session := review.NewSession()
	if err := session.Load(res.Candidates); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	if opts.approveAll {
		for _, c := range res.Candidates {
			if _, err := session.ToggleApproval(c.ID); err != nil {
				fmt.Fprintf(stderr, "%v\n", err)
				return 1
			}
		}
		n, err := session.Commit(ctx, committer, opts.poolID)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s; saved %d to pool %d\n", res.Report.Summary(), n, opts.poolID)
		return 0
	}

	model := tui.NewModel(session, committer, tui.Options{
		PoolID:  opts.poolID,
		Report:  res.Report,
		NoColor: opts.noColor,
	})
	final, err := tea.NewProgram(model, tea.WithOutput(stdout), tea.WithAltScreen()).Run()
	if err != nil {
		fmt.Fprintf(stderr, "ui: %v\n", err)
		return 1
	}
	out := final.(tui.Model).Outcome()
	switch {
	case out.Cancelled:
		fmt.Fprintln(stdout, "discarded, nothing saved")
	case out.Committed > 0:
		fmt.Fprintf(stdout, "saved %d questions to pool %d\n", out.Committed, opts.poolID)
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("qbank-review", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.file, "file", "-", "input file (.txt, .md, .pdf, .docx, .xlsx); - reads stdin")
	fs.StringVar(&o.prompt, "prompt", "", "topic for generation; implies -generate")
	fs.IntVar(&o.count, "count", 0, "number of questions expected; 0 counts numbered markers")
	fs.IntVar(&o.options, "options", generate.DefaultOptions, "options per generated question")
	fs.StringVar(&o.difficulty, "difficulty", "medium", "easy, medium or hard")
	fs.Int64Var(&o.poolID, "pool", 0, "target pool id")
	fs.StringVar(&o.server, "server", os.Getenv("QBANK_SERVER"), "qbank server base url")
	fs.StringVar(&o.token, "token", os.Getenv("QBANK_TOKEN"), "bearer token for -server")
	fs.StringVar(&o.dsn, "dsn", "", "postgres dsn; saves directly instead of via -server")
	fs.BoolVar(&o.generate, "generate", false, "send the input to a model instead of parsing it as-is")
	fs.StringVar(&o.model, "model", envDefault("DEFAULT_MODEL", "gemini-2.0-flash"), "model for -generate")
	fs.BoolVar(&o.shuffle, "shuffle", false, "shuffle the options of every question")
	fs.BoolVar(&o.approveAll, "approve-all", false, "approve everything and save without the UI")
	fs.BoolVar(&o.noColor, "no-color", false, "disable colors")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.prompt != "" {
		o.generate = true
	}
	if o.poolID < 0 {
		return options{}, fmt.Errorf("-pool must be positive")
	}
	return o, nil
}

func loadSource(ctx context.Context, o options, stdin io.Reader) (generate.Source, error) {
	var (
		name string
		data []byte
		err  error
	)
	if o.prompt == "" {
		if o.file == "-" {
			name = "stdin.txt"
			data, err = io.ReadAll(stdin)
		} else {
			name = filepath.Base(o.file)
			data, err = os.ReadFile(o.file)
		}
		if err != nil {
			return generate.Source{}, err
		}
	}

	if o.generate {
		svc := generate.NewService(generate.ServiceConfig{
			Runner: generate.NewRouter(generate.RouterConfig{
				GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
				OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
				SiteURL:          os.Getenv("SITE_URL"),
				Timeout:          2 * time.Minute,
			}),
			DefaultModel: o.model,
		})
		req := generate.Request{
			Prompt:             o.prompt,
			Count:              o.count,
			OptionsPerQuestion: o.options,
			Difficulty:         o.difficulty,
			Model:              o.model,
			ShuffleOptions:     o.shuffle,
		}
		if o.prompt != "" {
			if req.Count == 0 {
				req.Count = generate.DefaultFileCount
			}
			return svc.FromPrompt(ctx, req)
		}
		return svc.FromFile(ctx, name, data, req)
	}

	text := string(data)
	if ext := strings.ToLower(filepath.Ext(name)); ext != ".txt" && ext != ".md" {
		if text, err = (generate.Extractor{}).Extract(ctx, name, data); err != nil {
			return generate.Source{}, err
		}
	}
	src, err := generate.FromPaste(text, o.count, o.difficulty, 500)
	if err != nil {
		return generate.Source{}, err
	}
	src.Shuffle = o.shuffle
	return src, nil
}

// openSaver picks the direct database path when -dsn is set, otherwise the
// server's batch endpoint.
func openSaver(ctx context.Context, o options) (review.Saver, func(), error) {
	if o.poolID == 0 {
		return nil, nil, fmt.Errorf("-pool is required to save")
	}
	if o.dsn != "" {
		conn, err := db.OpenPostgres(ctx, o.dsn)
		if err != nil {
			return nil, nil, err
		}
		return pool.NewService(conn), func() { _ = conn.Close() }, nil
	}
	if o.server == "" {
		return nil, nil, fmt.Errorf("set -server (or QBANK_SERVER) or -dsn to save")
	}
	return pool.NewClient(o.server, o.token, nil), func() {}, nil
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// defaultIsTerminal inspects stdout for TTY support.
func defaultIsTerminal(stdout io.Writer) bool {
	if stdout == nil {
		return false
	}
	if file, ok := stdout.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	if fder, ok := stdout.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}
