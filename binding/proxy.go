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

package binding

import (
	"github.com/rulego/hotscript/api/types"
)

// RequestProxy is the call-scoped view of the live host request handed to a
// script handler. It holds a non-owning reference that is cleared by
// Invalidate before the dispatch returns; every method re-validates it and
// returns types.ErrProxyInvalid afterwards. Host failures come back as
// *types.HostError.
type RequestProxy struct {
	req types.HostRequest
}

// NewRequestProxy binds a proxy to req.
func NewRequestProxy(req types.HostRequest) *RequestProxy {
	return &RequestProxy{req: req}
}

// Invalidate clears the back reference.
func (p *RequestProxy) Invalidate() {
	p.req = nil
}

// Valid reports whether the proxy is still bound to a live request.
func (p *RequestProxy) Valid() bool {
	return p != nil && p.req != nil
}

func (p *RequestProxy) get() (types.HostRequest, error) {
	if !p.Valid() {
		return nil, types.ErrProxyInvalid
	}
	return p.req, nil
}

func (p *RequestProxy) Method() (string, error) {
	r, err := p.get()
	if err != nil {
		return "", err
	}
	return r.Method(), nil
}

func (p *RequestProxy) FullURL() (string, error) {
	r, err := p.get()
	if err != nil {
		return "", err
	}
	return r.FullURL(), nil
}

func (p *RequestProxy) AbsPath() (string, error) {
	r, err := p.get()
	if err != nil {
		return "", err
	}
	return r.AbsPath(), nil
}

func (p *RequestProxy) Host() (string, error) {
	r, err := p.get()
	if err != nil {
		return "", err
	}
	return r.Host(), nil
}

func (p *RequestProxy) QueryString() (string, error) {
	r, err := p.get()
	if err != nil {
		return "", err
	}
	return r.QueryString(), nil
}

func (p *RequestProxy) SetURL(url string, resetQuery bool) error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.SetURL(url, resetQuery); err != nil {
		return types.NewHostError("setUrl", err)
	}
	return nil
}

// Header returns the header value and whether it is present.
func (p *RequestProxy) Header(name string) (string, bool, error) {
	r, err := p.get()
	if err != nil {
		return "", false, err
	}
	v, ok := r.Header(name)
	return v, ok, nil
}

func (p *RequestProxy) SetHeader(name, value string, replace bool) error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.SetHeader(name, value, replace); err != nil {
		return types.NewHostError("setHeader", err)
	}
	return nil
}

func (p *RequestProxy) DeleteHeader(name string) error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.DeleteHeader(name); err != nil {
		return types.NewHostError("deleteHeader", err)
	}
	return nil
}

// Read returns the remaining entity body, nil when there is none.
func (p *RequestProxy) Read(rewrite bool) ([]byte, error) {
	r, err := p.get()
	if err != nil {
		return nil, err
	}
	body, err := r.ReadBody(rewrite)
	if err != nil {
		return nil, types.NewHostError("read", err)
	}
	return body, nil
}

func (p *RequestProxy) LocalAddr() (string, error) {
	r, err := p.get()
	if err != nil {
		return "", err
	}
	addr, err := r.LocalAddr()
	if err != nil {
		return "", types.NewHostError("getLocalAddress", err)
	}
	return addr, nil
}

func (p *RequestProxy) RemoteAddr() (string, error) {
	r, err := p.get()
	if err != nil {
		return "", err
	}
	addr, err := r.RemoteAddr()
	if err != nil {
		return "", types.NewHostError("getRemoteAddress", err)
	}
	return addr, nil
}

// ResponseProxy is the call-scoped view of the live host response. It follows
// the same invalidation rules as RequestProxy.
type ResponseProxy struct {
	resp types.HostResponse
}

// NewResponseProxy binds a proxy to resp.
func NewResponseProxy(resp types.HostResponse) *ResponseProxy {
	return &ResponseProxy{resp: resp}
}

// Invalidate clears the back reference.
func (p *ResponseProxy) Invalidate() {
	p.resp = nil
}

// Valid reports whether the proxy is still bound to a live response.
func (p *ResponseProxy) Valid() bool {
	return p != nil && p.resp != nil
}

func (p *ResponseProxy) get() (types.HostResponse, error) {
	if !p.Valid() {
		return nil, types.ErrProxyInvalid
	}
	return p.resp, nil
}

func (p *ResponseProxy) Status() (int, error) {
	r, err := p.get()
	if err != nil {
		return 0, err
	}
	return r.Status(), nil
}

func (p *ResponseProxy) SetStatus(code int, reason string) error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.SetStatus(code, reason); err != nil {
		return types.NewHostError("setStatus", err)
	}
	return nil
}

func (p *ResponseProxy) Header(name string) (string, bool, error) {
	r, err := p.get()
	if err != nil {
		return "", false, err
	}
	v, ok := r.Header(name)
	return v, ok, nil
}

func (p *ResponseProxy) SetHeader(name, value string, replace bool) error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.SetHeader(name, value, replace); err != nil {
		return types.NewHostError("setHeader", err)
	}
	return nil
}

func (p *ResponseProxy) DeleteHeader(name string) error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.DeleteHeader(name); err != nil {
		return types.NewHostError("deleteHeader", err)
	}
	return nil
}

func (p *ResponseProxy) Write(body []byte) (int, error) {
	r, err := p.get()
	if err != nil {
		return 0, err
	}
	n, err := r.Write(body)
	if err != nil {
		return n, types.NewHostError("write", err)
	}
	return n, nil
}

func (p *ResponseProxy) Redirect(url string, code int) error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.Redirect(url, code); err != nil {
		return types.NewHostError("redirect", err)
	}
	return nil
}

func (p *ResponseProxy) CloseConnection() error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.CloseConnection(); err != nil {
		return types.NewHostError("closeConnection", err)
	}
	return nil
}

func (p *ResponseProxy) Clear() error {
	r, err := p.get()
	if err != nil {
		return err
	}
	if err := r.Clear(); err != nil {
		return types.NewHostError("clear", err)
	}
	return nil
}
