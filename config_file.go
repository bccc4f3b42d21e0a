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
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors Options' field names in TOML form for static
// deployment configuration, layered on top of (not replacing) the
// functional-options construction path used for programmatic embedding.
// Grounded on the teacher's transitive BurntSushi/toml dependency.
type fileConfig struct {
	Network struct {
		Address          string `toml:"address"`
		Port             int    `toml:"port"`
		Backlog          int    `toml:"backlog"`
		TCPNoDelay       bool   `toml:"tcp_no_delay"`
		SOLinger         int    `toml:"so_linger"`
		SOTimeoutMS      int    `toml:"so_timeout_ms"`
		FirstReadTimeoutMS int  `toml:"first_read_timeout_ms"`
	} `toml:"network"`

	Pool struct {
		MaxThreads     int    `toml:"max_threads"`
		ThreadPriority int    `toml:"thread_priority"`
		Daemon         bool   `toml:"daemon"`
		Name           string `toml:"name"`
	} `toml:"pool"`

	Poller struct {
		PollerSize          int `toml:"poller_size"`
		PollTimeUS          int `toml:"poll_time_us"`
		SelectorTimeoutMS   int `toml:"selector_timeout_ms"`
		AcceptorThreadCount int `toml:"acceptor_thread_count"`
	} `toml:"poller"`

	Features struct {
		UseSendfile bool `toml:"use_sendfile"`
		UseComet    bool `toml:"use_comet"`
	} `toml:"features"`

	TLS struct {
		Enabled     bool   `toml:"enabled"`
		CertFile    string `toml:"cert_file"`
		KeyFile     string `toml:"key_file"`
		CAFile      string `toml:"ca_file"`
		VerifyMode  string `toml:"verify_mode"`
		VerifyDepth int    `toml:"verify_depth"`
	} `toml:"tls"`

	LogPath string `toml:"log_path"`
}

// LoadOptionsFromTOML parses a TOML configuration file into a fresh
// Options, applying any additional programmatic overrides afterward.
func LoadOptionsFromTOML(path string, overrides ...Option) (*Options, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, err
	}

	o := DefaultOptions()
	o.Address = fc.Network.Address
	o.Port = fc.Network.Port
	if fc.Network.Backlog > 0 {
		o.Backlog = fc.Network.Backlog
	}
	o.TCPNoDelay = fc.Network.TCPNoDelay
	if fc.Network.SOLinger != 0 {
		o.SOLinger = fc.Network.SOLinger
	}
	if fc.Network.SOTimeoutMS != 0 {
		o.SOTimeout = time.Duration(fc.Network.SOTimeoutMS) * time.Millisecond
	}
	if fc.Network.FirstReadTimeoutMS > 0 {
		o.FirstReadTimeout = time.Duration(fc.Network.FirstReadTimeoutMS) * time.Millisecond
	}

	if fc.Pool.MaxThreads != 0 {
		o.MaxThreads = fc.Pool.MaxThreads
	}
	o.ThreadPriority = fc.Pool.ThreadPriority
	o.Daemon = fc.Pool.Daemon
	o.Name = fc.Pool.Name

	if fc.Poller.PollerSize > 0 {
		o.PollerSize = fc.Poller.PollerSize
	}
	if fc.Poller.PollTimeUS > 0 {
		o.PollTime = time.Duration(fc.Poller.PollTimeUS) * time.Microsecond
	}
	if fc.Poller.SelectorTimeoutMS > 0 {
		o.SelectorTimeout = time.Duration(fc.Poller.SelectorTimeoutMS) * time.Millisecond
	}
	if fc.Poller.AcceptorThreadCount > 0 {
		o.AcceptorThreadCount = fc.Poller.AcceptorThreadCount
	}

	o.UseSendfile = fc.Features.UseSendfile
	o.UseComet = fc.Features.UseComet

	o.TLS = TLSConfig{
		Enabled:     fc.TLS.Enabled,
		CertFile:    fc.TLS.CertFile,
		KeyFile:     fc.TLS.KeyFile,
		CAFile:      fc.TLS.CAFile,
		VerifyMode:  fc.TLS.VerifyMode,
		VerifyDepth: fc.TLS.VerifyDepth,
	}

	o.LogPath = fc.LogPath

	return apply(o, overrides...), nil
}
