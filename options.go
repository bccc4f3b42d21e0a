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

import "time"

// TLSConfig captures the TLS configuration surface from spec.md §6. The
// core only uses it to decide whether setSocketOptionsAndRegister attempts
// a handshake; record-layer internals remain out of scope (Non-goals) and
// are delegated entirely to crypto/tls when Enabled is set.
type TLSConfig struct {
	Enabled      bool
	CertFile     string
	KeyFile      string
	ChainFile    string
	CAFile       string
	CAPath       string
	RevokeFile   string
	RevokePath   string
	VerifyMode   string // "none", "optional", "required"
	VerifyDepth  int
	CipherSuites []uint16
	MinVersion   uint16
}

// Options holds the endpoint's full configuration surface (spec.md §6).
// Built via functional options (WithXxx), matching the teacher's
// svr.opts *Options field populated by a variadic option list.
type Options struct {
	// Network
	Address   string
	Port      int
	Backlog   int
	TCPNoDelay bool
	SOLinger  int
	SOTimeout time.Duration // <=0 means disabled, matches soTimeout default -1
	FirstReadTimeout time.Duration

	// Pool
	MaxThreads     int
	ThreadPriority int
	Daemon         bool
	Name           string
	Executor       Executor

	// Poller
	PollerSize         int
	PollTime           time.Duration
	SelectorTimeout    time.Duration
	PollerThreadCount  int // forced to 1, see spec.md §9
	AcceptorThreadCount int

	// Features
	UseSendfile bool
	UseComet    bool

	TLS TLSConfig

	LogPath string
}

// DefaultOptions returns the spec.md §6 defaults.
func DefaultOptions() *Options {
	return &Options{
		Backlog:             100,
		TCPNoDelay:          true,
		SOLinger:            100,
		SOTimeout:           -1,
		FirstReadTimeout:    60 * time.Second,
		MaxThreads:          40,
		PollerSize:          8192,
		PollTime:            2 * time.Millisecond,
		SelectorTimeout:     5 * time.Second,
		PollerThreadCount:   1,
		AcceptorThreadCount: 1,
		UseComet:            true,
	}
}

// Option mutates an Options in place, the functional-options idiom the
// teacher exposes for gnet.WithXxx(...) style construction.
type Option func(*Options)

func WithAddress(addr string) Option { return func(o *Options) { o.Address = addr } }
func WithPort(port int) Option       { return func(o *Options) { o.Port = port } }
func WithBacklog(n int) Option       { return func(o *Options) { o.Backlog = n } }
func WithTCPNoDelay(v bool) Option   { return func(o *Options) { o.TCPNoDelay = v } }
func WithSOLinger(n int) Option      { return func(o *Options) { o.SOLinger = n } }
func WithSOTimeout(d time.Duration) Option {
	return func(o *Options) { o.SOTimeout = d }
}
func WithFirstReadTimeout(d time.Duration) Option {
	return func(o *Options) { o.FirstReadTimeout = d }
}
func WithMaxThreads(n int) Option { return func(o *Options) { o.MaxThreads = n } }
func WithThreadPriority(n int) Option {
	return func(o *Options) { o.ThreadPriority = n }
}
func WithDaemon(v bool) Option { return func(o *Options) { o.Daemon = v } }
func WithName(name string) Option { return func(o *Options) { o.Name = name } }
func WithExecutor(e Executor) Option { return func(o *Options) { o.Executor = e } }
func WithPollerSize(n int) Option    { return func(o *Options) { o.PollerSize = n } }
func WithPollTime(d time.Duration) Option {
	return func(o *Options) { o.PollTime = d }
}
func WithSelectorTimeout(d time.Duration) Option {
	return func(o *Options) { o.SelectorTimeout = d }
}
func WithAcceptorThreadCount(n int) Option {
	return func(o *Options) { o.AcceptorThreadCount = n }
}
func WithUseSendfile(v bool) Option { return func(o *Options) { o.UseSendfile = v } }
func WithUseComet(v bool) Option    { return func(o *Options) { o.UseComet = v } }
func WithTLS(cfg TLSConfig) Option  { return func(o *Options) { o.TLS = cfg } }
func WithLogPath(path string) Option { return func(o *Options) { o.LogPath = path } }

// apply folds a list of Option onto a base Options, forcing
// PollerThreadCount back to 1 regardless of caller input (spec.md §4.1
// "forced to 1 in this release").
func apply(base *Options, opts ...Option) *Options {
	for _, opt := range opts {
		opt(base)
	}
	base.PollerThreadCount = 1
	return base
}
