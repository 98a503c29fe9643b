package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"speech-relay/internal/infrastructure/client"
	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
)

const maxTranscriptLine = 1 << 20

type emitter interface {
	Emit(ctx context.Context, name string, payload any) error
}

type receiver interface {
	Receive(ctx context.Context) (hub.Event, error)
}

// dial connects to the relay named by the loaded configuration. The returned
// context is cancelled by SIGINT/SIGTERM.
func (o *rootOptions) dial(cmd *cobra.Command) (context.Context, *client.Client, logger.Logger, error) {
	cfg, log, err := o.load(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := WithSignal(cmd.Context())
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := client.Dial(dialCtx, cfg.URL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return ctx, c, log, nil
}

func newListenCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print every relayed event as a JSON line until exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, _, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			return printEvents(ctx, c, cmd.OutOrStdout())
		},
	}
}

type printedEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// printEvents writes events from r to w until an exit event has been printed.
func printEvents(ctx context.Context, r receiver, w io.Writer) error {
	enc := json.NewEncoder(w)
	for {
		ev, err := r.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		if err := enc.Encode(printedEvent{Event: ev.Name, Data: ev.Payload}); err != nil {
			return err
		}
		if ev.Name == hub.EventExit {
			return nil
		}
	}
}

func newDemoCommand(opts *rootOptions) *cobra.Command {
	var (
		interval time.Duration
		count    int
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Emit demo events with an incrementing counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, log, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go untilExit(ctx, c, cancel)

			sent, err := runDemo(ctx, c, interval, count)
			log.Infof("sent %d demo events", sent)
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "delay between demo events")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many events (0 = until exit)")
	return cmd
}

// runDemo emits ("demo", n) for n = 0, 1, ... every interval.
func runDemo(ctx context.Context, e emitter, interval time.Duration, count int) (int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for count <= 0 || n < count {
		select {
		case <-ctx.Done():
			return n, nil
		case <-ticker.C:
			if err := e.Emit(ctx, hub.EventDemo, n); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func newEmitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "emit <event> [payload]",
		Short: "Publish one event; the payload is sent as JSON when it parses, else as a string",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw *string
			if len(args) == 2 {
				raw = &args[1]
			}
			payload := parsePayload(raw)

			ctx, c, log, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Emit(ctx, args[0], payload); err != nil {
				return err
			}
			log.Infof("emitted %s", args[0])
			return nil
		},
	}
}

// parsePayload turns a command-line argument into an event payload. A
// missing argument is JSON null.
func parsePayload(arg *string) json.RawMessage {
	if arg == nil {
		return json.RawMessage("null")
	}
	if s := strings.TrimSpace(*arg); s != "" && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}

	quoted, _ := json.Marshal(*arg)
	return quoted
}

func newPipeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pipe",
		Short: `Publish transcriber output read from stdin as {"type":..., "text":...} JSON lines`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, log, err := opts.dial(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go untilExit(ctx, c, cancel)

			sent, err := pipeTranscripts(ctx, cmd.InOrStdin(), c, log)
			log.Infof("published %d transcript events", sent)
			return err
		},
	}
}

var errSkipLine = errors.New("skip")

type transcriptLine struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseTranscriptLine decodes one transcriber output line. Lines without
// text yield errSkipLine.
func parseTranscriptLine(line []byte) (transcriptLine, error) {
	var tl transcriptLine
	if err := json.Unmarshal(line, &tl); err != nil {
		return tl, fmt.Errorf("decode transcript line: %w", err)
	}
	if tl.Type == "" {
		return tl, errors.New("transcript line has no type")
	}
	if strings.TrimSpace(tl.Text) == "" {
		return tl, errSkipLine
	}
	return tl, nil
}

// pipeTranscripts publishes each transcript line from r until EOF or ctx
// is done. Bad lines are logged and skipped.
func pipeTranscripts(ctx context.Context, r io.Reader, e emitter, log logger.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTranscriptLine)

	sent := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return sent, nil
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		tl, err := parseTranscriptLine(line)
		if errors.Is(err, errSkipLine) {
			continue
		}
		if err != nil {
			log.Warnf("skipping line: %v", err)
			continue
		}

		if err := e.Emit(ctx, tl.Type, tl.Text); err != nil {
			return sent, err
		}
		sent++
	}

	if err := scanner.Err(); err != nil {
		return sent, fmt.Errorf("read transcripts: %w", err)
	}
	return sent, nil
}

// untilExit reads and discards relayed events, which keeps the websocket
// answering pings, and calls stop once exit arrives or the connection ends.
func untilExit(ctx context.Context, r receiver, stop context.CancelFunc) {
	defer stop()
	for {
		ev, err := r.Receive(ctx)
		if err != nil || ev.Name == hub.EventExit {
			return
		}
	}
}
