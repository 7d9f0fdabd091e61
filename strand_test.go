package strand

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/txthinking/socks5"

	"github.com/die-net/strand/internal/dialer"
	"github.com/die-net/strand/internal/proxy"
	"github.com/die-net/strand/internal/testutil"
)

func TestNewStreamDialerFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		descriptor string
		wantErr    error
	}{
		{descriptor: ""},
		{descriptor: "split:3"},
		{descriptor: "tlsfrag:5|split:64"},
		{descriptor: "bogus:1", wantErr: dialer.ErrUnknownStrategy},
		{descriptor: "split:0", wantErr: dialer.ErrInvalidParameters},
		{descriptor: "split:3||split:5", wantErr: nil}, // checked below
	}

	for _, tt := range tests {
		t.Run(tt.descriptor, func(t *testing.T) {
			d, err := NewStreamDialerFromConfig(tt.descriptor)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if tt.descriptor == "split:3||split:5" {
				var parseErr *dialer.ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected *dialer.ParseError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			d.Release()
		})
	}
}

func TestStreamDialerRelease(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartMultiEchoTCPServer(t, ctx)
	defer echoLn.Close()

	d, err := NewStreamDialerFromConfig("")
	if err != nil {
		t.Fatal(err)
	}

	c, err := d.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c, c, []byte("hello"))

	d.Release()
	d.Release() // idempotent

	if _, err := d.DialContext(ctx, "tcp", echoLn.Addr().String()); !errors.Is(err, ErrDialerReleased) {
		t.Fatalf("expected ErrDialerReleased, got %v", err)
	}

	// Connections dialed before the release keep working.
	testutil.AssertEcho(t, c, c, []byte("still here"))
	c.Close()
}

func TestRunProxyEcho(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	echoLn := testutil.StartMultiEchoTCPServer(t, ctx)
	defer echoLn.Close()

	d, err := NewStreamDialerFromConfig("split:3")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	p, err := RunProxy("127.0.0.1:0", d)
	if err != nil {
		t.Fatal(err)
	}

	client, err := socks5.NewClient(p.Address(), "", "", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	c, err := client.Dial("tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c, c, []byte("through the proxy"))
	c.Close()

	if err := p.Stop(1000); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestRunProxySurvivesDialerRelease(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	echoLn := testutil.StartMultiEchoTCPServer(t, ctx)
	defer echoLn.Close()

	d, err := NewStreamDialerFromConfig("")
	if err != nil {
		t.Fatal(err)
	}

	p, err := RunProxy("127.0.0.1:0", d)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = p.Stop(1000)
		_ = p.Release()
	}()

	// Releasing the handle must not break the proxy already running with it.
	d.Release()

	client, err := socks5.NewClient(p.Address(), "", "", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	c, err := client.Dial("tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	testutil.AssertEcho(t, c, c, []byte("released handle"))
}

func TestRunProxyReleasedDialer(t *testing.T) {
	t.Parallel()

	d, err := NewStreamDialerFromConfig("")
	if err != nil {
		t.Fatal(err)
	}
	d.Release()

	if _, err := RunProxy("127.0.0.1:0", d); !errors.Is(err, ErrDialerReleased) {
		t.Fatalf("expected ErrDialerReleased, got %v", err)
	}
	if _, err := RunProxy("127.0.0.1:0", nil); !errors.Is(err, ErrDialerReleased) {
		t.Fatalf("expected ErrDialerReleased for nil dialer, got %v", err)
	}
}

func TestRunProxyBindError(t *testing.T) {
	t.Parallel()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	d, err := NewStreamDialerFromConfig("")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	_, err = RunProxy(ln.Addr().String(), d)
	var bindErr *proxy.BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("expected *proxy.BindError, got %v", err)
	}
}

func TestProxyLifecycleViolations(t *testing.T) {
	t.Parallel()

	d, err := NewStreamDialerFromConfig("")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	p, err := RunProxy("127.0.0.1:0", d)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Release(); !errors.Is(err, proxy.ErrNotStopped) {
		t.Fatalf("release before stop: expected ErrNotStopped, got %v", err)
	}

	if err := p.Stop(1000); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(1000); !errors.Is(err, proxy.ErrNotRunning) {
		t.Fatalf("second stop: expected ErrNotRunning, got %v", err)
	}

	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); !errors.Is(err, proxy.ErrReleased) {
		t.Fatalf("double release: expected ErrReleased, got %v", err)
	}
}
