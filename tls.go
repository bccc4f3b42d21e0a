// Copyright (c) 2019 Andy Pan
// Copyright (c) 2018 Joshua J Baker
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package gnet

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"github.com/walkon/gnet/errs"
)

// buildTLSConfig translates the spec's TLSConfig surface into a
// *tls.Config. Record-layer internals are entirely delegated to
// crypto/tls (Non-goals excludes encrypted transport implementation, not
// the integration point itself, per SPEC_FULL.md §6).
func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: load keypair: %v", errs.ErrHandshakeFailed, err)
	}

	tc := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   cfg.MinVersion,
		CipherSuites: cfg.CipherSuites,
	}
	if tc.MinVersion == 0 {
		tc.MinVersion = tls.VersionTLS12
	}

	switch cfg.VerifyMode {
	case "required":
		tc.ClientAuth = tls.RequireAndVerifyClientCert
	case "optional":
		tc.ClientAuth = tls.VerifyClientCertIfGiven
	default:
		tc.ClientAuth = tls.NoClientCert
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read ca file: %v", errs.ErrHandshakeFailed, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certs parsed from ca file", errs.ErrHandshakeFailed)
		}
		tc.ClientCAs = pool
	}

	return tc, nil
}

// maybeHandshake performs the TLS server handshake on nc when TLS is
// enabled, returning the wrapped connection. When TLS is disabled nc is
// returned unchanged. Revocation (RevokeFile/RevokePath) is accepted in
// configuration but not enforced: CRL/OCSP checking is genuinely out of
// scope per spec.md's TLS stub note, left for a future revision.
func maybeHandshake(nc net.Conn, tc *tls.Config) (net.Conn, error) {
	if tc == nil {
		return nc, nil
	}
	tlsConn := tls.Server(nc, tc)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrHandshakeFailed, err)
	}
	return tlsConn, nil
}
