// sse_load opens many subscribers on the swap record stream and reports delivery counts.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/v1/swaps/stream", "swap stream URL")
	conns := flag.Int("conns", 200, "number of concurrent subscribers")
	dur := flag.Duration("dur", 60*time.Second, "test duration (0 for until interrupted)")
	ramp := flag.Duration("ramp", time.Second, "spread subscriber starts across this window")
	after := flag.String("after", "", "Last-Event-ID to resume from")
	flag.Parse()

	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer l.Sync() //nolint:errcheck

	if *conns <= 0 {
		l.Fatal("invalid conns", zap.Int("conns", *conns))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *dur > 0 {
		ctx, cancel = context.WithTimeout(ctx, *dur)
		defer cancel()
	}

	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     *conns + 10,
		MaxIdleConnsPerHost: *conns + 10,
		DisableCompression:  true,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}}

	l.Info("starting swap stream load",
		zap.String("url", *targetURL), zap.Int("conns", *conns), zap.Duration("dur", *dur))

	var c counters
	start := time.Now()
	interval := *ramp / time.Duration(*conns)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *conns; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-gctx.Done():
			case <-time.After(interval):
			}
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			subscribe(gctx, client, *targetURL, *after, &c)
			return nil
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	for {
		select {
		case <-ticker.C:
			report(l, "progress", &c, start)
		case <-done:
			report(l, "finished", &c, start)
			if c.connected.Load() == 0 {
				os.Exit(1)
			}
			return
		}
	}
}

func subscribe(ctx context.Context, client *http.Client, url, after string, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if after != "" {
		req.Header.Set("Last-Event-ID", after)
	}

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}
	c.connected.Add(1)

	_, err = countSwapEvents(resp.Body, func() { c.events.Add(1) })
	if err != nil && ctx.Err() == nil {
		c.streamErrs.Add(1)
	}
}

// countSwapEvents reads an event stream until EOF and calls onEvent for every complete swap frame.
func countSwapEvents(r io.Reader, onEvent func()) (int, error) {
	var (
		n       int
		isSwap  bool
		hasData bool
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if isSwap && hasData {
				n++
				if onEvent != nil {
					onEvent()
				}
			}
			isSwap, hasData = false, false
		case strings.HasPrefix(line, "event:"):
			isSwap = strings.TrimSpace(strings.TrimPrefix(line, "event:")) == "swap"
		case strings.HasPrefix(line, "data:"):
			hasData = true
		}
	}
	return n, sc.Err()
}

func report(l *zap.Logger, msg string, c *counters, start time.Time) {
	l.Info(msg,
		zap.Duration("elapsed", time.Since(start).Truncate(time.Second)),
		zap.Int64("connected", c.connected.Load()),
		zap.Int64("connect_errs", c.connectErrs.Load()),
		zap.Int64("stream_errs", c.streamErrs.Load()),
		zap.Int64("events", c.events.Load()),
	)
}
