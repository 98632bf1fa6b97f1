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

// Package test provides in-memory host objects and helpers for package tests.
package test

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rulego/hotscript/api/types"
)

var _ types.HostContext = (*HostContext)(nil)

// HostContext is an in-memory host context.
type HostContext struct {
	Req  *HostRequest
	Resp *HostResponse
}

// NewHostContext creates a context for one request. rawURL must be absolute.
func NewHostContext(method, rawURL, body string) *HostContext {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return &HostContext{
		Req: &HostRequest{
			method:  method,
			url:     u,
			Headers: make(http.Header),
			body:    []byte(body),
			Local:   "127.0.0.1",
			Remote:  "10.0.0.7",
			Fail:    make(map[string]error),
		},
		Resp: &HostResponse{
			StatusCode: http.StatusOK,
			Headers:    make(http.Header),
			Fail:       make(map[string]error),
		},
	}
}

func (c *HostContext) Request() types.HostRequest {
	if c.Req == nil {
		return nil
	}
	return c.Req
}

func (c *HostContext) Response() types.HostResponse {
	if c.Resp == nil {
		return nil
	}
	return c.Resp
}

// HostRequest is an in-memory request. Fail maps an operation name to the
// error it returns, to simulate host failures.
type HostRequest struct {
	method  string
	url     *url.URL
	Headers http.Header
	body    []byte
	Local   string
	Remote  string
	Fail    map[string]error
}

func (r *HostRequest) Method() string      { return r.method }
func (r *HostRequest) FullURL() string     { return r.url.String() }
func (r *HostRequest) AbsPath() string     { return r.url.Path }
func (r *HostRequest) Host() string        { return r.url.Host }
func (r *HostRequest) QueryString() string { return r.url.RawQuery }

// URL returns the current, possibly rewritten, request URL.
func (r *HostRequest) URL() *url.URL { return r.url }

func (r *HostRequest) SetURL(rawURL string, resetQuery bool) error {
	if err := r.Fail["setUrl"]; err != nil {
		return err
	}
	u, err := r.url.Parse(rawURL)
	if err != nil {
		return &types.HostError{Op: "setUrl", Code: types.HostCodeInvalidArgument, Err: err}
	}
	if !resetQuery && u.RawQuery == "" {
		u.RawQuery = r.url.RawQuery
	}
	r.url = u
	return nil
}

func (r *HostRequest) Header(name string) (string, bool) {
	v, ok := r.Headers[http.CanonicalHeaderKey(name)]
	if !ok || len(v) == 0 {
		return "", false
	}
	return strings.Join(v, ","), true
}

func (r *HostRequest) SetHeader(name, value string, replace bool) error {
	if err := r.Fail["setHeader"]; err != nil {
		return err
	}
	if replace {
		r.Headers.Set(name, value)
	} else {
		r.Headers.Add(name, value)
	}
	return nil
}

func (r *HostRequest) DeleteHeader(name string) error {
	if err := r.Fail["deleteHeader"]; err != nil {
		return err
	}
	r.Headers.Del(name)
	return nil
}

func (r *HostRequest) ReadBody(rewrite bool) ([]byte, error) {
	if err := r.Fail["read"]; err != nil {
		return nil, err
	}
	body := r.body
	if !rewrite {
		r.body = nil
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

func (r *HostRequest) LocalAddr() (string, error) {
	if r.Local == "" {
		return "", errors.New("no local address")
	}
	return r.Local, nil
}

func (r *HostRequest) RemoteAddr() (string, error) {
	if r.Remote == "" {
		return "", errors.New("no remote address")
	}
	return r.Remote, nil
}

// HostResponse is an in-memory response.
type HostResponse struct {
	StatusCode int
	Reason     string
	Headers    http.Header
	Body       bytes.Buffer
	Closed     bool
	Fail       map[string]error
}

func (r *HostResponse) Status() int { return r.StatusCode }

func (r *HostResponse) SetStatus(code int, reason string) error {
	if err := r.Fail["setStatus"]; err != nil {
		return err
	}
	if r.Body.Len() > 0 {
		return &types.HostError{Op: "setStatus", Code: types.HostCodeHeadersSent, Err: errors.New("headers already sent")}
	}
	r.StatusCode = code
	r.Reason = reason
	return nil
}

func (r *HostResponse) Header(name string) (string, bool) {
	v := r.Headers.Get(name)
	return v, v != ""
}

func (r *HostResponse) SetHeader(name, value string, replace bool) error {
	if err := r.Fail["setHeader"]; err != nil {
		return err
	}
	if replace {
		r.Headers.Set(name, value)
	} else {
		r.Headers.Add(name, value)
	}
	return nil
}

func (r *HostResponse) DeleteHeader(name string) error {
	r.Headers.Del(name)
	return nil
}

func (r *HostResponse) Write(p []byte) (int, error) {
	if err := r.Fail["write"]; err != nil {
		return 0, err
	}
	return r.Body.Write(p)
}

func (r *HostResponse) Redirect(location string, code int) error {
	if err := r.Fail["redirect"]; err != nil {
		return err
	}
	r.Headers.Set("Location", location)
	r.StatusCode = code
	return nil
}

func (r *HostResponse) CloseConnection() error {
	r.Closed = true
	return nil
}

func (r *HostResponse) Clear() error {
	if r.Body.Len() > 0 {
		return errors.New("body already written")
	}
	r.Headers = make(http.Header)
	r.StatusCode = http.StatusOK
	r.Reason = ""
	return nil
}
