package dialer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

type tlsDialer struct {
	cfg      Config
	inner    Dialer
	sni      string
	certName string
}

// newTLSDialer builds the "tls" strategy: the dialed stream is wrapped in a
// TLS client session. The SNI sent on the wire and the name the server
// certificate is validated against can be set independently, which allows
// domain fronting setups such as "tls:sni=decoy.example/certname=real.example".
//
// Parameters (key=value, both optional): sni, certname. Each defaults to the
// dialed host.
func newTLSDialer(cfg Config, inner Dialer, params []string) (Dialer, error) {
	d := &tlsDialer{cfg: cfg, inner: inner}
	err := keyValueParams(params, func(key, value string) error {
		switch key {
		case "sni":
			d.sni = value
		case "certname":
			d.certName = value
		default:
			return invalidParamsError("tls", fmt.Sprintf("unsupported option %q", key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *tlsDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, rejectDial(network, address, "tls supports tcp only")
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, classifyDial(network, address, fmt.Errorf("tls: %w", err))
	}

	conn, err := d.inner.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	sni := d.sni
	if sni == "" {
		sni = host
	}
	certName := d.certName
	if certName == "" {
		certName = host
	}

	cfg := &tls.Config{
		ServerName: sni,
		MinVersion: tls.VersionTLS12,
	}
	if certName != sni {
		// Handshake with the decoy SNI but validate the chain against the
		// real name ourselves.
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyCertName(certName)
	}

	tc := tls.Client(conn, cfg)
	if d.cfg.NegotiationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.NegotiationTimeout)
		defer cancel()
	}
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, classifyDial(network, address, fmt.Errorf("tls handshake: %w", err))
	}

	return tc, nil
}

func verifyCertName(certName string) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("parse server certificate: %w", err)
			}
			certs = append(certs, cert)
		}
		if len(certs) == 0 {
			return fmt.Errorf("server presented no certificates")
		}

		opts := x509.VerifyOptions{
			DNSName:       certName,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range certs[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := certs[0].Verify(opts)
		return err
	}
}
