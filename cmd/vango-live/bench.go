package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime"
	"runtime/metrics"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vango-dev/vango-live/internal/errors"
	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/markup"
	"github.com/vango-dev/vango-live/pkg/protocol"
	"github.com/vango-dev/vango-live/pkg/server"
)

type benchOptions struct {
	clients      int
	duration     time.Duration
	rps          float64
	payloadBytes int
	shared       bool
}

// benchResult is what one run measured.
type benchResult struct {
	events    uint64
	errors    uint64
	latencies []time.Duration
	elapsed   time.Duration
}

func benchCmd() *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure action round-trip latency under concurrent load",
		Long: `Bench starts an in-process server and drives concurrent WebSocket
clients. Each client sends an action carrying a unique token and waits for
the update that echoes it back, so one sample covers:

  client send → decode → dispatch → render → encode → client receive

With --shared every client acts on one component and receives every
other client's updates as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.clients <= 0 || opts.duration <= 0 || opts.rps <= 0 || opts.payloadBytes < 0 {
				return errors.Newf(errors.CategoryCLI, "--clients, --duration and --rps must be positive")
			}
			var before runtime.MemStats
			runtime.GC()
			runtime.ReadMemStats(&before)
			beforeMetrics := readRuntimeMetrics()

			res, err := runBench(cmd.Context(), opts)
			if err != nil {
				return err
			}

			var after runtime.MemStats
			runtime.GC()
			runtime.ReadMemStats(&after)
			afterMetrics := readRuntimeMetrics()

			out := cmd.OutOrStdout()
			printBench(out, opts, res)
			fmt.Fprintln(out, "Go runtime (process-wide):")
			fmt.Fprintf(out, "  alloc:     %.2f MB\n", float64(after.TotalAlloc-before.TotalAlloc)/(1024*1024))
			fmt.Fprintf(out, "  num_gc:    %d\n", after.NumGC-before.NumGC)
			fmt.Fprintf(out, "  gc_pause:  %s (total)\n", time.Duration(after.PauseTotalNs-before.PauseTotalNs))
			fmt.Fprintf(out, "  gc_cpu:    %.2f%%\n", 100*cpuFraction(afterMetrics, beforeMetrics))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.clients, "clients", 100, "Concurrent WebSocket clients")
	cmd.Flags().DurationVar(&opts.duration, "duration", 15*time.Second, "Run time")
	cmd.Flags().Float64Var(&opts.rps, "rps", 2, "Target actions/s per client (response-gated)")
	cmd.Flags().IntVar(&opts.payloadBytes, "payload-bytes", 24, "Token size per action")
	cmd.Flags().BoolVar(&opts.shared, "shared", false, "All clients act on one component")
	return cmd
}

// echoKind renders the last token it was sent.
func echoKind() component.Kind {
	return component.Kind{
		Name: "echo",
		Init: func() component.State { return component.State{"token": ""} },
		Render: func(id string, s component.State) (string, error) {
			return markup.Render(markup.Component("div", id, nil,
				markup.El("input", markup.Attrs{"name": "token", "value": fmt.Sprint(s["token"])})))
		},
		Actions: component.Actions{
			"echo": func(ctx context.Context, c *component.Component, e component.Event) error {
				return c.Set("token", e.String("value"))
			},
		},
	}
}

func runBench(ctx context.Context, opts *benchOptions) (*benchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	bc := server.DefaultBrokerConfig()
	bc.Logger = quiet
	broker := server.NewBroker(bc)
	broker.RegisterKind(echoKind())
	target := func(i int) string {
		if opts.shared {
			return "echo-shared"
		}
		return fmt.Sprintf("echo-%d", i)
	}
	for i := 0; i < opts.clients; i++ {
		if _, ok := broker.Components().Get(target(i)); ok {
			continue
		}
		if _, err := broker.Mount("echo", target(i)); err != nil {
			return nil, err
		}
	}

	sc := server.DefaultServerConfig()
	sc.CheckOrigin = func(*http.Request) bool { return true }
	sc.DisableMetrics = true
	sc.Logger = quiet
	srv, err := server.New(broker, sc)
	if err != nil {
		return nil, errors.New(errors.CodeConfigInvalid).Wrap(err)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, errors.New(errors.CodeListen).Wrap(err)
	}
	httpServer := &http.Server{Handler: srv}
	go func() { _ = httpServer.Serve(ln) }()
	defer func() {
		_ = srv.Shutdown(context.Background())
		_ = httpServer.Shutdown(context.Background())
	}()
	wsURL := "ws://" + ln.Addr().String() + sc.WebSocketPath

	runCtx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	var (
		mu        sync.Mutex
		latencies []time.Duration
		events    atomic.Uint64
		failures  atomic.Uint64
		wg        sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < opts.clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := runBenchClient(runCtx, wsURL, i, target(i), opts, func(rtt time.Duration) {
				events.Add(1)
				mu.Lock()
				latencies = append(latencies, rtt)
				mu.Unlock()
			})
			if err != nil && runCtx.Err() == nil {
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return &benchResult{
		events:    events.Load(),
		errors:    failures.Load(),
		latencies: latencies,
		elapsed:   time.Since(start),
	}, nil
}

func runBenchClient(ctx context.Context, wsURL string, clientID int, componentID string, opts *benchOptions, sample func(time.Duration)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sessionID := fmt.Sprintf("bench-%d", clientID)
	if err := writeMessage(conn, protocol.NewRegister(sessionID, []string{componentID})); err != nil {
		return err
	}
	if _, err := waitFor(conn, func(m *protocol.Message) bool { return m.Type == protocol.TypeRegistered }); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	period := time.Duration(float64(time.Second) / opts.rps)
	for seq := uint64(1); ctx.Err() == nil; seq++ {
		token := makeToken(clientID, seq, opts.payloadBytes)
		begin := time.Now()
		if err := writeMessage(conn, protocol.NewAction(componentID, "echo", map[string]any{"value": token})); err != nil {
			return err
		}
		_, err := waitFor(conn, func(m *protocol.Message) bool {
			for _, u := range m.AllUpdates() {
				if u.ComponentID == componentID && strings.Contains(u.HTML, token) {
					return true
				}
			}
			return false
		})
		if err != nil {
			return err
		}
		sample(time.Since(begin))

		if sleep := period - time.Since(begin); sleep > 0 {
			t := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
	}
	return nil
}

func writeMessage(conn *websocket.Conn, m *protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// waitFor reads until match accepts a message. An error message fails.
func waitFor(conn *websocket.Conn, match func(*protocol.Message) bool) (*protocol.Message, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		m, err := protocol.DecodeServerMessage(data)
		if err != nil {
			return nil, err
		}
		if m.Type == protocol.TypeError {
			return nil, fmt.Errorf("server error %s: %s", m.ErrorCode, m.Message)
		}
		if match(m) {
			return m, nil
		}
	}
}

func makeToken(clientID int, seq uint64, payloadBytes int) string {
	prefix := fmt.Sprintf("c%d:%d:", clientID, seq)
	if payloadBytes <= len(prefix) {
		return prefix
	}
	raw := make([]byte, (payloadBytes-len(prefix)+1)/2)
	_, _ = rand.Read(raw)
	return (prefix + hex.EncodeToString(raw))[:payloadBytes]
}

func printBench(w io.Writer, opts *benchOptions, res *benchResult) {
	secs := math.Max(0.001, res.elapsed.Seconds())
	fmt.Fprintln(w, "=== vango-live bench ===")
	fmt.Fprintf(w, "Clients: %d (shared component: %v)\n", opts.clients, opts.shared)
	fmt.Fprintf(w, "Duration: %s\n", opts.duration)
	fmt.Fprintf(w, "Target per-client rate: %.2f actions/s\n", opts.rps)
	fmt.Fprintf(w, "Total actions: %d\n", res.events)
	fmt.Fprintf(w, "Errors: %d\n", res.errors)
	fmt.Fprintf(w, "Throughput: %.1f actions/s\n\n", float64(res.events)/secs)

	if len(res.latencies) == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
		return
	}
	l := res.latencies
	fmt.Fprintln(w, "Round trip (action → update):")
	fmt.Fprintf(w, "  min: %s\n", l[0])
	fmt.Fprintf(w, "  p50: %s\n", percentile(l, 0.50))
	fmt.Fprintf(w, "  p95: %s\n", percentile(l, 0.95))
	fmt.Fprintf(w, "  p99: %s\n", percentile(l, 0.99))
	fmt.Fprintf(w, "  max: %s\n\n", l[len(l)-1])
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

type runtimeSnapshot struct {
	cpuTotal float64
	cpuGC    float64
}

func readRuntimeMetrics() runtimeSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
	}
	metrics.Read(samples)
	var out runtimeSnapshot
	for _, s := range samples {
		if s.Value.Kind() != metrics.KindFloat64 {
			continue
		}
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotal = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGC = s.Value.Float64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeSnapshot) float64 {
	total := after.cpuTotal - before.cpuTotal
	gc := after.cpuGC - before.cpuGC
	if total <= 0 || gc < 0 {
		return 0
	}
	return gc / total
}
