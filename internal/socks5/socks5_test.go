package socks5

import (
	"net"
	"testing"

	txsocks5 "github.com/txthinking/socks5"
)

func TestClientServerHandshake(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	type result struct {
		req *Request
		err error
	}
	done := make(chan result, 1)
	go func() {
		req, err := ServerHandshake(server)
		if err == nil {
			err = WriteSuccessReply(server, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9})
		}
		done <- result{req, err}
	}()

	if err := ClientDial(client, Auth{}, "example.com:443"); err != nil {
		t.Fatal(err)
	}

	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	if got := res.req.Address(); got != "example.com:443" {
		t.Fatalf("got %q want %q", got, "example.com:443")
	}
}

func TestServerHandshakeRejectsNonConnect(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(server)
		done <- err
	}()

	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodNone}).WriteTo(client); err != nil {
		t.Fatal(err)
	}
	if _, err := txsocks5.NewNegotiationReplyFrom(client); err != nil {
		t.Fatal(err)
	}
	if _, err := txsocks5.NewRequest(txsocks5.CmdUDP, txsocks5.ATYPIPv4, []byte{127, 0, 0, 1}, []byte{0, 53}).WriteTo(client); err != nil {
		t.Fatal(err)
	}

	rep, err := txsocks5.NewReplyFrom(client)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Rep != txsocks5.RepCommandNotSupported {
		t.Fatalf("got rep %d want command-not-supported", rep.Rep)
	}

	if err := <-done; err == nil {
		t.Fatal("expected handshake error for UDP command")
	}
}

func TestServerHandshakeNoCommonMethod(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(server)
		done <- err
	}()

	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodUsernamePassword}).WriteTo(client); err != nil {
		t.Fatal(err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(client)
	if err != nil {
		t.Fatal(err)
	}
	if neg.Method != 0xff {
		t.Fatalf("got method %#x want 0xff", neg.Method)
	}

	if err := <-done; err == nil {
		t.Fatal("expected negotiation failure")
	}
}
