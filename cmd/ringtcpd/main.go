// Command ringtcpd runs a trivial echo server on top of the ringtcp
// engine: every accepted connection gets its bytes written straight
// back to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"
	"unsafe"

	"github.com/ringtcp/ringtcp"
	"github.com/ringtcp/ringtcp/internal/logging"
)

// bytesFromRingItem views a received chunk as a []byte. Valid only until
// the caller returns item.BufferID via Connection.ReturnRing.
func bytesFromRingItem(item ringtcp.RingItem) []byte {
	if item.Len == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(item.Ptr)), item.Len)
}

func main() {
	var (
		bindAddr = flag.String("bind", "", "Bind address (empty = IPv4 INADDR_ANY)")
		port     = flag.Int("port", 9000, "Listen port")
		reactors = flag.Int("reactors", 0, "Reactor pool size (0 = runtime.NumCPU())")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)
	defer logger.Close()

	cfg := ringtcp.DefaultEngineConfig(*bindAddr, uint16(*port))
	cfg.ReactorCount = *reactors

	engine, err := ringtcp.New(cfg, &ringtcp.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := engine.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("engine started", "bind", formatAddr(*bindAddr, *port), "reactors", *reactors)
	fmt.Printf("ringtcpd listening on %s\n", formatAddr(*bindAddr, *port))
	fmt.Printf("Press Ctrl+C to stop...\n")
	fmt.Printf("Send SIGUSR1 (kill -USR1 %d) to dump goroutine stacks\n", os.Getpid())

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1024*1024)
			n := runtime.Stack(buf, true)
			filename := fmt.Sprintf("ringtcpd-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				fmt.Fprintf(f, "Goroutine stack dump at %s\n", time.Now().Format(time.RFC3339))
				f.Write(buf[:n])
				fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack trace written to file", "file", filename)
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go acceptLoop(ctx, engine, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	cancel()

	if err := engine.Stop(); err != nil {
		logger.Error("error stopping engine", "error", err)
	} else {
		logger.Info("engine stopped successfully")
	}
}

func acceptLoop(ctx context.Context, engine *ringtcp.Engine, logger *logging.Logger) {
	for {
		c, err := engine.AcceptAsync(ctx)
		if err != nil || c == nil {
			return
		}
		go echo(c, logger)
	}
}

// echo reads whatever arrives and writes it straight back until the
// connection closes, logging nothing on the steady-state path.
func echo(c *ringtcp.Connection, logger *logging.Logger) {
	for {
		snap := c.ReadAsync()
		if snap.Closed {
			return
		}

		var item ringtcp.RingItem
		var ok bool
		for item, ok = c.TryGetRing(snap.Tail); ok; item, ok = c.TryGetRing(snap.Tail) {
			data := bytesFromRingItem(item)
			if _, err := c.Write(data); err != nil {
				logger.Debug("write rejected", "error", err)
			}
			c.ReturnRing(item.BufferID)
		}
		c.ResetRead()

		res := c.FlushAsync()
		if res.Closed {
			return
		}
	}
}

func formatAddr(bind string, port int) string {
	if bind == "" {
		return "0.0.0.0:" + strconv.Itoa(port)
	}
	return bind + ":" + strconv.Itoa(port)
}
