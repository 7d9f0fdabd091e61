package dialer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"
)

func TestNewTLSDialerParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		params       []string
		wantSNI      string
		wantCertName string
		wantErr      bool
	}{
		{
			name: "no params",
		},
		{
			name:    "sni only",
			params:  []string{"sni=decoy.example"},
			wantSNI: "decoy.example",
		},
		{
			name:         "sni and certname",
			params:       []string{"sni=decoy.example", "certname=real.example"},
			wantSNI:      "decoy.example",
			wantCertName: "real.example",
		},
		{
			name:    "unknown option",
			params:  []string{"alpn=h2"},
			wantErr: true,
		},
		{
			name:    "bare value",
			params:  []string{"example.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := newTLSDialer(Config{}, NewDirectDialer(Config{}), tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			td := d.(*tlsDialer)
			if td.sni != tt.wantSNI || td.certName != tt.wantCertName {
				t.Fatalf("got sni=%q certname=%q want sni=%q certname=%q", td.sni, td.certName, tt.wantSNI, tt.wantCertName)
			}
		})
	}
}

// selfSignedCert generates a throwaway certificate covering names.
func selfSignedCert(t *testing.T, names ...string) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: names[0]},
		DNSNames:              names,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// startTLSServer serves TLS handshakes with cert and reports each client's
// SNI on the returned channel.
func startTLSServer(t *testing.T, cert tls.Certificate) (net.Listener, <-chan string) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	sniCh := make(chan string, 4)
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		GetConfigForClient: func(chi *tls.ClientHelloInfo) (*tls.Config, error) {
			sniCh <- chi.ServerName
			return nil, nil
		},
	}

	tln := tls.NewListener(ln, cfg)
	go func() {
		for {
			c, err := tln.Accept()
			if err != nil {
				return
			}
			go func() {
				// The handshake fails once the client refuses the untrusted
				// chain; the SNI was recorded on the way in.
				_ = c.(*tls.Conn).Handshake()
				c.Close()
			}()
		}
	}()
	t.Cleanup(func() { _ = tln.Close() })

	return tln, sniCh
}

func TestTLSDialerHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, sniCh := startTLSServer(t, selfSignedCert(t, "real.example", "decoy.example"))

	tests := []struct {
		name    string
		params  []string
		wantSNI string
	}{
		{
			// Matching names use the standard chain verification path.
			name:    "standard verification rejects untrusted chain",
			params:  []string{"sni=real.example", "certname=real.example"},
			wantSNI: "real.example",
		},
		{
			// Decoy SNI on the wire, real name for validation: the custom
			// verification path still rejects the untrusted chain.
			name:    "split verification rejects untrusted chain",
			params:  []string{"sni=decoy.example", "certname=real.example"},
			wantSNI: "decoy.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := newTLSDialer(
				Config{NegotiationTimeout: 2 * time.Second},
				NewDirectDialer(Config{DialTimeout: 2 * time.Second}),
				tt.params,
			)
			if err != nil {
				t.Fatal(err)
			}

			_, err = d.DialContext(ctx, "tcp", ln.Addr().String())
			if err == nil {
				t.Fatal("expected handshake against self-signed server to fail")
			}
			var de *DialError
			if !errors.As(err, &de) {
				t.Fatalf("got %T: %v, want *DialError", err, err)
			}
			var certErr x509.UnknownAuthorityError
			if !errors.As(err, &certErr) {
				t.Fatalf("got %v, want certificate verification failure", err)
			}

			select {
			case sni := <-sniCh:
				if sni != tt.wantSNI {
					t.Fatalf("server saw SNI %q, want %q", sni, tt.wantSNI)
				}
			case <-ctx.Done():
				t.Fatal("no handshake reached the server")
			}
		})
	}
}

func TestTLSDialerRejectsNonTCP(t *testing.T) {
	t.Parallel()

	d, err := newTLSDialer(Config{}, NewDirectDialer(Config{}), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.DialContext(context.Background(), "udp", "example.com:443")
	assertDialKind(t, err, KindStrategyRejected)
}
