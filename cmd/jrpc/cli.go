package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"mini-jsonrpc/client"
	"mini-jsonrpc/config"
	"mini-jsonrpc/jsonrpc"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/value"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string   `help:"Path to the config file" type:"path"`
	LogLevel string   `name:"log-level" help:"Log level (debug, info, warn, error)"`
	Endpoint []string `help:"Endpoint address, replaces configured endpoints and etcd discovery (repeatable)"`
}

// output is bound next to Globals so commands never touch os.Stdout directly.
type output struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

// CLI represents the command line interface structure using Kong
type CLI struct {
	Globals

	Call    CallCmd    `cmd:"" help:"Call a method and print its result"`
	Notify  NotifyCmd  `cmd:"" help:"Send a notification"`
	Batch   BatchCmd   `cmd:"" help:"Send a batch of calls read from a JSON file"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

type CallCmd struct {
	Method string `arg:"" help:"Method name"`
	Params string `arg:"" optional:"" help:"Params as JSON (array or object)"`
}

type NotifyCmd struct {
	Method string `arg:"" help:"Method name"`
	Params string `arg:"" optional:"" help:"Params as JSON (array or object)"`
}

type BatchCmd struct {
	File string `arg:"" help:"JSON array of {\"method\", \"params\", \"notify\"} entries, - for stdin"`
}

type VersionCmd struct{}

// run parses args and executes the selected command, returning the exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cli := &CLI{}
	out := &output{stdout: stdout, stderr: stderr, stdin: stdin}

	exitCode := -1
	parser, err := kong.New(cli,
		kong.Name("jrpc"),
		kong.Description("JSON-RPC 2.0 command line client"),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
	)
	if err != nil {
		fmt.Fprintf(stderr, "jrpc: %v\n", err)
		return 2
	}
	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		// --help already printed
		return exitCode
	}
	if err != nil {
		parser.Errorf("%v", err)
		return 2
	}
	if err := kctx.Run(&cli.Globals, out); err != nil {
		report(stderr, err)
		return 1
	}
	return 0
}

// report prints err; a JSON-RPC error object is shown with its code, message and data.
func report(w io.Writer, err error) {
	var respErr *jsonrpc.ResponseError
	if errors.As(err, &respErr) {
		fmt.Fprintf(w, "error %d: %s\n", respErr.Code, respErr.Message)
		if respErr.Data != nil {
			fmt.Fprintf(w, "data: %s\n", respErr.Data.String())
		}
		return
	}
	fmt.Fprintf(w, "jrpc: %v\n", err)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: `2006-01-02 15:04:05`}).
		Level(lvl).With().Timestamp().Logger()
}

// connect loads the configuration, applies the flags and builds a client.
func (g *Globals) connect(ctx context.Context, out *output) (*client.Client, error) {
	cfg, err := config.Read(g.Config)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if len(g.Endpoint) > 0 {
		cfg.Endpoints = nil
		for _, addr := range g.Endpoint {
			cfg.Endpoints = append(cfg.Endpoints, registry.Endpoint{Addr: addr})
		}
		cfg.Etcd.Endpoints = nil
	}
	return client.FromConfig(ctx, cfg, newLogger(out.stderr, cfg.LogLevel))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func parseParams(text string) (*value.Value, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	v, err := value.Parse([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if k := v.Kind(); k != value.KindArray && k != value.KindObject {
		return nil, fmt.Errorf("params must be a JSON array or object, got %s", k)
	}
	return &v, nil
}

func (c *CallCmd) Run(g *Globals, out *output) error {
	params, err := parseParams(c.Params)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	cl, err := g.connect(ctx, out)
	if err != nil {
		return err
	}
	defer cl.Close()

	result, err := client.Call(ctx, cl, jsonrpc.Raw(c.Method, params))
	if err != nil {
		return err
	}
	return printJSON(out.stdout, result)
}

func (n *NotifyCmd) Run(g *Globals, out *output) error {
	params, err := parseParams(n.Params)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	cl, err := g.connect(ctx, out)
	if err != nil {
		return err
	}
	defer cl.Close()

	return cl.Notify(ctx, jsonrpc.NewNotification(n.Method, params))
}

// batchEntry is one line of a batch file.
type batchEntry struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Notify bool            `json:"notify,omitempty"`
}

func readBatchFile(path string, stdin io.Reader) ([]batchEntry, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var entries []batchEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("batch file %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("batch file %s: no calls", path)
	}
	for i, e := range entries {
		if e.Method == "" {
			return nil, fmt.Errorf("batch file %s: entry %d has no method", path, i)
		}
	}
	return entries, nil
}

func (b *BatchCmd) Run(g *Globals, out *output) error {
	entries, err := readBatchFile(b.File, out.stdin)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	cl, err := g.connect(ctx, out)
	if err != nil {
		return err
	}
	defer cl.Close()

	f := cl.Factory()
	calls := make([]jsonrpc.Call, 0, len(entries))
	elements := make([]*jsonrpc.Element[value.Value], len(entries))
	for i, e := range entries {
		params, err := parseParams(string(e.Params))
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if e.Notify {
			calls = append(calls, jsonrpc.Make(f, jsonrpc.NewNotification(e.Method, params)))
			continue
		}
		elements[i] = jsonrpc.Make(f, jsonrpc.Raw(e.Method, params))
		calls = append(calls, elements[i])
	}

	reply, err := cl.Batch(ctx, calls...)
	if err != nil {
		return err
	}
	return printBatch(out.stdout, elements, reply)
}

// printBatch writes one JSON line per call that expects a reply, in file
// order, and fails if any of them failed.
func printBatch(w io.Writer, elements []*jsonrpc.Element[value.Value], reply value.Value) error {
	failures := 0
	for _, el := range elements {
		if el == nil {
			continue
		}
		line := []value.Member{value.M("id", el.ID().Value()), value.M("method", value.String(el.Method()))}
		result, err := el.ResponseFrom(reply)
		if err != nil {
			failures++
			line = append(line, value.M("error", value.String(err.Error())))
		} else {
			line = append(line, value.M("result", result))
		}
		fmt.Fprintln(w, value.ObjectOf(line...).String())
	}
	if failures > 0 {
		return fmt.Errorf("%d of the batch calls failed", failures)
	}
	return nil
}

func (v *VersionCmd) Run(g *Globals, out *output) error {
	fmt.Fprintf(out.stdout, "jrpc %s (%s, built %s)\n", Version, Commit, Date)
	return nil
}

func printJSON(w io.Writer, v value.Value) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}
