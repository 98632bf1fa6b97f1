/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package rest serves HTTP through an interceptor: every request is offered
// to the interceptor first, and only requests it continues reach the router.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rulego/hotscript/api/types"
)

// MetricsPath is the route of the metrics endpoint. It bypasses the interceptor.
const MetricsPath = "/metrics"

// Middleware offers each request to interceptor. FinishRequest ends the
// request with the response the script produced; Continue passes the
// possibly rewritten request to next. On Continue only response headers
// carry over to next. A status set by the script is discarded and next
// writes its own.
func Middleware(interceptor types.Interceptor, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(w, r)
		if interceptor.BeginRequest(ctx) == types.FinishRequest {
			ctx.Finish()
			return
		}
		next.ServeHTTP(w, ctx.HTTPRequest())
	})
}

// Config Rest 服务配置
type Config struct {
	// Addr is the listen address, e.g. :9090
	Addr        string
	CertFile    string
	CertKeyFile string
}

// Rest HTTP 服务端点
type Rest struct {
	Config Config
	// Interceptor sees every request before the router. Nil disables interception.
	Interceptor types.Interceptor
	// Gatherer is served on MetricsPath when set.
	Gatherer prometheus.Gatherer
	Logger   types.Logger

	router   *httprouter.Router
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	stopped  bool
}

// AddRouter 注册路由
//
// For GET, POST, PUT, PATCH and DELETE requests the respective shortcut
// functions can be used.
func (r *Rest) AddRouter(method, path string, handle httprouter.Handle) *Rest {
	r.Router().Handle(method, path, handle)
	return r
}

func (r *Rest) GET(path string, handle httprouter.Handle) *Rest {
	return r.AddRouter(http.MethodGet, path, handle)
}

func (r *Rest) HEAD(path string, handle httprouter.Handle) *Rest {
	return r.AddRouter(http.MethodHead, path, handle)
}

func (r *Rest) OPTIONS(path string, handle httprouter.Handle) *Rest {
	return r.AddRouter(http.MethodOptions, path, handle)
}

func (r *Rest) POST(path string, handle httprouter.Handle) *Rest {
	return r.AddRouter(http.MethodPost, path, handle)
}

func (r *Rest) PUT(path string, handle httprouter.Handle) *Rest {
	return r.AddRouter(http.MethodPut, path, handle)
}

func (r *Rest) PATCH(path string, handle httprouter.Handle) *Rest {
	return r.AddRouter(http.MethodPatch, path, handle)
}

func (r *Rest) DELETE(path string, handle httprouter.Handle) *Rest {
	return r.AddRouter(http.MethodDelete, path, handle)
}

// Router returns the downstream router, creating it on first use.
func (r *Rest) Router() *httprouter.Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.router == nil {
		r.router = httprouter.New()
	}
	return r.router
}

// Handler returns the complete handler: metrics, interceptor, router.
func (r *Rest) Handler() http.Handler {
	var next http.Handler = r.Router()
	if r.Interceptor != nil {
		next = Middleware(r.Interceptor, next)
	}
	next = r.recoverer(next)
	if r.Gatherer == nil {
		return next
	}
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/", next)
	return mux
}

// Start listens on Config.Addr and serves until Stop. It returns nil after Stop.
func (r *Rest) Start() error {
	ln, err := net.Listen("tcp", r.Config.Addr)
	if err != nil {
		return err
	}
	return r.Serve(ln)
}

// Serve serves on ln until Stop. It closes ln and returns nil at once if
// Stop has already been called.
func (r *Rest) Serve(ln net.Listener) error {
	server := &http.Server{Handler: r.Handler()}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ln.Close()
	}
	r.server = server
	r.listener = ln
	r.mu.Unlock()

	var err error
	if r.Config.CertKeyFile != "" && r.Config.CertFile != "" {
		r.logf("starting server with TLS on %s", ln.Addr())
		err = server.ServeTLS(ln, r.Config.CertFile, r.Config.CertKeyFile)
	} else {
		r.logf("starting server on %s", ln.Addr())
		err = server.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listen address once serving, or nil.
func (r *Rest) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop shuts the server down gracefully. A later Serve returns immediately.
func (r *Rest) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	server := r.server
	r.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (r *Rest) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			//捕捉异常
			if e := recover(); e != nil {
				if e == http.ErrAbortHandler {
					panic(e)
				}
				r.logf("rest handler err :%v", e)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func (r *Rest) logf(format string, v ...interface{}) {
	if r.Logger != nil {
		r.Logger.Printf(format, v...)
	}
}
