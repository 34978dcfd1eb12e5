package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/limits"
	"github.com/rlmkit/rlm/internal/rlm/repl"
)

var serveSocketPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the per-step JSON protocol over a Unix socket",
	Long: `Serve runs a long-lived process that accepts the per-step JSON
protocol (spec.md §6) over a Unix socket, one interpreter instance per
connection, for dataset/eval harnesses that want to drive many REPL
sessions concurrently without paying process-startup cost per task.`,
	Example: `
  rlm serve --socket /tmp/rlm.sock
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSocketPath, "socket", "/tmp/rlm.sock", "Unix socket path to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := os.RemoveAll(serveSocketPath); err != nil {
		return &cliError{code: 2, err: fmt.Errorf("remove stale socket: %w", err)}
	}

	ln, err := net.Listen("unix", serveSocketPath)
	if err != nil {
		return &cliError{code: 2, err: fmt.Errorf("listen on %s: %w", serveSocketPath, err)}
	}
	defer ln.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("rlm serve listening", "socket", serveSocketPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("accept failed", "error", err)
			continue
		}
		go serveConn(conn)
	}
}

// serveConn drives one client connection's per-step protocol: a single
// repl.Session persists across every request on this connection, so a
// client that omits `state` on later requests is understood to be
// continuing the same session rather than starting a fresh one.
func serveConn(conn net.Conn) {
	defer conn.Close()

	var sess *repl.Session
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		req, err := repl.DecodeRequest(line)
		if err != nil {
			msg := err.Error()
			writeResponse(w, &repl.Response{OK: false, Error: &msg})
			continue
		}

		if sess == nil {
			maxOutputChars := req.MaxOutputChars
			if maxOutputChars <= 0 {
				maxOutputChars = 8_000
			}
			sess = repl.New(repl.Config{
				Context:        req.Context,
				Query:          req.Query,
				MaxOutputChars: maxOutputChars,
				Capability:     capability.Config{},
				Limits:         limits.Config{MaxSteps: 200_000, MaxBytes: 64 << 20, MaxStackDepth: 64},
			})
			if err := sess.Restore(req.State); err != nil {
				msg := err.Error()
				writeResponse(w, &repl.Response{OK: false, Error: &msg})
				continue
			}
		}

		output, execErr := sess.Execute(req.Code)
		state, snapErr := sess.Snapshot()
		if snapErr != nil {
			msg := snapErr.Error()
			writeResponse(w, &repl.Response{OK: false, Error: &msg})
			continue
		}
		if execErr != nil {
			msg := execErr.Error()
			writeResponse(w, &repl.Response{OK: false, Output: output, Error: &msg, State: state})
			continue
		}
		writeResponse(w, &repl.Response{OK: true, Output: output, State: state})
	}
	if err := scanner.Err(); err != nil {
		slog.Error("connection read error", "error", err)
	}
}

func writeResponse(w *bufio.Writer, resp *repl.Response) {
	out, err := repl.EncodeResponse(resp)
	if err != nil {
		slog.Error("encode response", "error", err)
		return
	}
	w.Write(out)
	w.WriteByte('\n')
	w.Flush()
}
