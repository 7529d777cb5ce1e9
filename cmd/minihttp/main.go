// Command minihttp sends requests through the httpx client and prints the
// responses. --repeat shows connection reuse; --stats dumps pool counters.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dqx0.com/go/minihttp/httpx"
	"dqx0.com/go/minihttp/internal/config"
	"dqx0.com/go/minihttp/internal/obs"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
	logFormat  string
	maxBody    int64
	headers    []string
	timeout    time.Duration
	repeat     int
	stats      bool
	include    bool

	data    string
	chunked bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "minihttp",
		Short:        "Minimal HTTP/1.1 client",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log format: text (structured) or plain")
	pf.Int64Var(&opts.maxBody, "max-body", 0, "Maximum body bytes to read per response")
	pf.StringArrayVarP(&opts.headers, "header", "H", nil, `Request header "Name: value" (repeatable)`)
	pf.DurationVar(&opts.timeout, "timeout", 0, "Deadline for each request, 0 for none")
	pf.IntVar(&opts.repeat, "repeat", 1, "Send the request N times over the same client")
	pf.BoolVar(&opts.stats, "stats", false, "Print pool and request counters at exit")
	pf.BoolVarP(&opts.include, "include", "i", false, "Print the response head")

	root.AddCommand(
		&cobra.Command{
			Use:   "get URL",
			Short: "Send a GET request",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, opts, "GET", args[0])
			},
		},
		&cobra.Command{
			Use:   "head URL",
			Short: "Send a HEAD request and print the response head",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				opts.include = true
				return run(cmd, opts, "HEAD", args[0])
			},
		},
	)

	post := &cobra.Command{
		Use:   "post URL",
		Short: "Send a POST request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "POST", args[0])
		},
	}
	post.Flags().StringVarP(&opts.data, "data", "d", "", "Request body; @file reads it from a file")
	post.Flags().BoolVar(&opts.chunked, "chunked", false, "Send the body with chunked transfer-encoding")
	root.AddCommand(post)
	return root
}

func run(cmd *cobra.Command, opts *options, method, rawURL string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.maxBody > 0 {
		cfg.MaxBody = opts.maxBody
	}
	level, ok := obs.ParseLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, level)
	if err != nil {
		return err
	}
	meter := &obs.MemMeter{}
	client := httpx.NewClient(cfg.Client, httpx.WithLogger(logger), httpx.WithMeter(meter))
	defer client.Close()

	hdr := httpx.Header{}
	for _, h := range opts.headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("bad header %q, want \"Name: value\"", h)
		}
		hdr.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	body, err := loadBody(opts.data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i := 0; i < max(opts.repeat, 1); i++ {
		if err := once(cmd.Context(), client, opts, cfg.MaxBody, method, rawURL, hdr, body, out); err != nil {
			return err
		}
	}
	if opts.stats {
		printStats(out, client.Pool().Stats(), meter)
	}
	return nil
}

func newLogger(w io.Writer, format string, level obs.Level) (obs.Logger, error) {
	switch format {
	case "text", "":
		handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: obs.SlogLevel(level)})
		return obs.SlogLogger{
			L:     slog.New(handler),
			Attrs: []slog.Attr{slog.String("component", "minihttp")},
		}, nil
	case "plain":
		return obs.StdLogger{L: log.New(w, "", log.LstdFlags), Min: level, Pref: "minihttp "}, nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

func loadBody(data string) ([]byte, error) {
	if name, ok := strings.CutPrefix(data, "@"); ok {
		return os.ReadFile(name)
	}
	if data == "" {
		return nil, nil
	}
	return []byte(data), nil
}

func once(ctx context.Context, c *httpx.Client, opts *options, maxBody int64, method, rawURL string, hdr httpx.Header, body []byte, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	var r io.Reader
	if body != nil {
		r = strings.NewReader(string(body))
		if opts.chunked {
			// Hide the length so the client has to chunk.
			r = io.MultiReader(r)
		}
	}
	req, err := httpx.NewRequest(ctx, method, rawURL, r)
	if err != nil {
		return err
	}
	req.Header = hdr.Clone()
	res, err := c.Do(req)
	if err != nil {
		return err
	}
	b, readErr := res.ReadAll(maxBody)
	if err := c.Release(res); err != nil {
		return err
	}
	if opts.include {
		fmt.Fprintf(out, "%s %s\n", res.Proto, res.Status)
		keys := make([]string, 0, len(res.Header))
		for k := range res.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range res.Header[k] {
				fmt.Fprintf(out, "%s: %s\n", k, v)
			}
		}
		fmt.Fprintln(out)
	}
	if _, err := out.Write(b); err != nil {
		return err
	}
	return readErr
}

func printStats(out io.Writer, st httpx.PoolStats, m *obs.MemMeter) {
	fmt.Fprintf(out, "\n-- pool: hosts=%d idle=%d open=%d dials=%d reuses=%d evictions=%d expired=%d discards=%d\n",
		st.Hosts, st.Idle, st.Open, st.Dials, st.Reuses, st.Evictions, st.Expired, st.Discards)
	snap := m.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s %g\n", k, snap[k])
	}
}
