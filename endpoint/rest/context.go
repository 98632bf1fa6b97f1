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

package rest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/rulego/hotscript/api/types"
)

var (
	_ types.HostContext  = (*Context)(nil)
	_ types.HostRequest  = (*Request)(nil)
	_ types.HostResponse = (*Response)(nil)
)

var errHeadersSent = errors.New("headers already sent")

// Context exposes one net/http exchange to the interceptor.
type Context struct {
	req  *Request
	resp *Response
}

// NewContext binds w and a clone of r. Rewrites made by the script apply to
// the clone, which Request().HTTPRequest returns for the downstream handler.
func NewContext(w http.ResponseWriter, r *http.Request) *Context {
	return &Context{
		req:  &Request{r: r.Clone(r.Context())},
		resp: &Response{w: w, status: http.StatusOK},
	}
}

func (c *Context) Request() types.HostRequest {
	return c.req
}

func (c *Context) Response() types.HostResponse {
	return c.resp
}

// HTTPRequest returns the possibly rewritten request.
func (c *Context) HTTPRequest() *http.Request {
	return c.req.r
}

// Finish writes the status line when the script completed the request
// without writing a body.
func (c *Context) Finish() {
	c.resp.writeHeader()
}

// Request is the net/http implementation of types.HostRequest.
type Request struct {
	r *http.Request
}

func (r *Request) Method() string {
	return r.r.Method
}

func (r *Request) FullURL() string {
	scheme := "http"
	if r.r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.r.Host + r.r.URL.RequestURI()
}

func (r *Request) AbsPath() string {
	return r.r.URL.Path
}

func (r *Request) Host() string {
	return r.r.Host
}

func (r *Request) QueryString() string {
	return r.r.URL.RawQuery
}

func (r *Request) SetURL(rawURL string, resetQuery bool) error {
	if rawURL == "" {
		return &types.HostError{Op: "setUrl", Code: types.HostCodeInvalidArgument, Err: errors.New("empty url")}
	}
	u, err := r.r.URL.Parse(rawURL)
	if err != nil {
		return &types.HostError{Op: "setUrl", Code: types.HostCodeInvalidArgument, Err: err}
	}
	if !resetQuery && u.RawQuery == "" {
		u.RawQuery = r.r.URL.RawQuery
	}
	if u.Host != "" && u.Host != r.r.Host {
		return &types.HostError{Op: "setUrl", Code: types.HostCodeInvalidArgument, Err: fmt.Errorf("cross host rewrite to %s", u.Host)}
	}
	u.Scheme, u.Host = "", ""
	r.r.URL = u
	r.r.RequestURI = u.RequestURI()
	return nil
}

func (r *Request) Header(name string) (string, bool) {
	values := r.r.Header.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ","), true
}

func (r *Request) SetHeader(name, value string, replace bool) error {
	if name == "" {
		return &types.HostError{Op: "setHeader", Code: types.HostCodeInvalidArgument, Err: errors.New("empty header name")}
	}
	if replace {
		r.r.Header.Set(name, value)
	} else {
		r.r.Header.Add(name, value)
	}
	if strings.EqualFold(name, "Host") {
		r.r.Host = r.r.Header.Get("Host")
	}
	return nil
}

func (r *Request) DeleteHeader(name string) error {
	r.r.Header.Del(name)
	return nil
}

func (r *Request) ReadBody(rewrite bool) ([]byte, error) {
	if r.r.Body == nil || r.r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(r.r.Body)
	_ = r.r.Body.Close()
	if err != nil {
		r.r.Body = http.NoBody
		return nil, err
	}
	if rewrite {
		r.r.Body = io.NopCloser(bytes.NewReader(data))
		r.r.ContentLength = int64(len(data))
	} else {
		r.r.Body = http.NoBody
	}
	return data, nil
}

func (r *Request) LocalAddr() (string, error) {
	addr, ok := r.r.Context().Value(http.LocalAddrContextKey).(net.Addr)
	if !ok || addr == nil {
		return "", &types.HostError{Op: "getLocalAddress", Code: types.HostCodeUnavailable, Err: errors.New("no local address")}
	}
	return addr.String(), nil
}

func (r *Request) RemoteAddr() (string, error) {
	if r.r.RemoteAddr == "" {
		return "", &types.HostError{Op: "getRemoteAddress", Code: types.HostCodeUnavailable, Err: errors.New("no remote address")}
	}
	return r.r.RemoteAddr, nil
}

// Response is the net/http implementation of types.HostResponse. Status and
// headers may change until the first body write sends them.
type Response struct {
	w           http.ResponseWriter
	status      int
	reason      string
	wroteHeader bool
}

func (r *Response) Status() int {
	return r.status
}

// Reason returns the reason phrase set by the script. net/http always sends
// the standard phrase for the status code.
func (r *Response) Reason() string {
	return r.reason
}

// Written reports whether the status line was sent.
func (r *Response) Written() bool {
	return r.wroteHeader
}

func (r *Response) SetStatus(code int, reason string) error {
	if r.wroteHeader {
		return &types.HostError{Op: "setStatus", Code: types.HostCodeHeadersSent, Err: errHeadersSent}
	}
	if code < 100 || code > 999 {
		return &types.HostError{Op: "setStatus", Code: types.HostCodeInvalidArgument, Err: fmt.Errorf("invalid status code %d", code)}
	}
	r.status = code
	r.reason = reason
	return nil
}

func (r *Response) Header(name string) (string, bool) {
	values := r.w.Header().Values(name)
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ","), true
}

func (r *Response) SetHeader(name, value string, replace bool) error {
	if r.wroteHeader {
		return &types.HostError{Op: "setHeader", Code: types.HostCodeHeadersSent, Err: errHeadersSent}
	}
	if name == "" {
		return &types.HostError{Op: "setHeader", Code: types.HostCodeInvalidArgument, Err: errors.New("empty header name")}
	}
	if replace {
		r.w.Header().Set(name, value)
	} else {
		r.w.Header().Add(name, value)
	}
	return nil
}

func (r *Response) DeleteHeader(name string) error {
	if r.wroteHeader {
		return &types.HostError{Op: "deleteHeader", Code: types.HostCodeHeadersSent, Err: errHeadersSent}
	}
	r.w.Header().Del(name)
	return nil
}

func (r *Response) Write(p []byte) (int, error) {
	r.writeHeader()
	return r.w.Write(p)
}

func (r *Response) Redirect(url string, code int) error {
	if r.wroteHeader {
		return &types.HostError{Op: "redirect", Code: types.HostCodeHeadersSent, Err: errHeadersSent}
	}
	if code < 300 || code > 399 {
		return &types.HostError{Op: "redirect", Code: types.HostCodeInvalidArgument, Err: fmt.Errorf("invalid redirect code %d", code)}
	}
	r.w.Header().Set("Location", url)
	r.status = code
	return nil
}

// CloseConnection asks the server to close the connection after this response.
func (r *Response) CloseConnection() error {
	if r.wroteHeader {
		return &types.HostError{Op: "closeConnection", Code: types.HostCodeHeadersSent, Err: errHeadersSent}
	}
	r.w.Header().Set("Connection", "close")
	return nil
}

func (r *Response) Clear() error {
	if r.wroteHeader {
		return &types.HostError{Op: "clear", Code: types.HostCodeHeadersSent, Err: errHeadersSent}
	}
	header := r.w.Header()
	for k := range header {
		delete(header, k)
	}
	r.status = http.StatusOK
	r.reason = ""
	return nil
}

func (r *Response) writeHeader() {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.w.WriteHeader(r.status)
}
