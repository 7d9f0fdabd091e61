// Command strand runs a local SOCKS5 forwarding proxy whose outbound
// connections are shaped by a strategy descriptor, e.g.
//
//	strand --listen 127.0.0.1:1080 --transport "split:3"
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/die-net/strand/internal/dialer"
	"github.com/die-net/strand/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen    = pflag.String("listen", "127.0.0.1:1080", "SOCKS5 proxy listen address")
		transport = pflag.String("transport", "", "Outbound strategy descriptor, e.g. 'split:3' or 'tlsfrag:5|socks5:host:1080'. Empty means direct TCP.")

		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for protocol negotiation to set up connections")
		stopTimeout        = pflag.Duration("stop-timeout", 5*time.Second, "How long to wait for in-flight sessions to drain on shutdown")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45s:45s:3", "TCP keepalive: on, off, or idle:interval:count (durations or bare seconds)")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection error logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
	}

	d, err := dialer.NewFromDescriptor(dialCfg, *transport)
	if err != nil {
		return fmt.Errorf("invalid --transport: %w", err)
	}

	srv, err := proxy.Run(*listen, proxy.Config{
		Dialer:             d,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		Verbose:            *verbose,
	})
	if err != nil {
		return err
	}
	log.Printf("socks5 proxy listening on %s", srv.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Print("shutting down")
	err = srv.Stop(*stopTimeout)
	switch {
	case errors.Is(err, proxy.ErrStopDeadline):
		log.Print("shutdown deadline exceeded, sessions force-closed")
	case err != nil:
		return err
	}

	return srv.Release()
}

// parseTCPKeepAlive accepts "on", "off", or "idle:interval:count" where idle
// and interval are durations ("45s", "2m") or bare seconds ("45") and count
// is the number of unanswered probes before the connection is dropped.
func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{}, nil
	}

	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on, off, or idle:interval:count")
	}

	idle, err := keepAliveDuration(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("idle: %w", err)
	}
	interval, err := keepAliveDuration(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("interval: %w", err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("count: %w", err)
	}
	if count <= 0 {
		return net.KeepAliveConfig{}, errors.New("count must be > 0")
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     idle,
		Interval: interval,
		Count:    count,
	}, nil
}

// keepAliveDuration parses a duration, treating a bare number as seconds.
func keepAliveDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		s = strconv.Itoa(n) + "s"
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be > 0")
	}
	return d, nil
}
