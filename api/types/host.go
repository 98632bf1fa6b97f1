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

package types

// HostContext is the per-request object the host hands to BeginRequest.
// Its request and response are live for the duration of the call only.
type HostContext interface {
	Request() HostRequest
	Response() HostResponse
}

// HostRequest is the inbound request surface exposed to scripts.
type HostRequest interface {
	Method() string
	// FullURL returns scheme, host, path and query.
	FullURL() string
	// AbsPath returns the absolute path without the query.
	AbsPath() string
	Host() string
	QueryString() string
	// SetURL rewrites the request URL. When resetQuery is false the current
	// query string is kept if url has none.
	SetURL(url string, resetQuery bool) error
	Header(name string) (string, bool)
	SetHeader(name, value string, replace bool) error
	DeleteHeader(name string) error
	// ReadBody reads the remaining entity body. When rewrite is true the body is
	// put back so the host pipeline can read it again.
	ReadBody(rewrite bool) ([]byte, error)
	LocalAddr() (string, error)
	RemoteAddr() (string, error)
}

// HostResponse is the outbound response surface exposed to scripts.
type HostResponse interface {
	Status() int
	SetStatus(code int, reason string) error
	Header(name string) (string, bool)
	SetHeader(name, value string, replace bool) error
	DeleteHeader(name string) error
	Write(p []byte) (int, error)
	Redirect(url string, code int) error
	CloseConnection() error
	// Clear drops buffered headers and status. It fails once the body started.
	Clear() error
}

// Interceptor handles the begin-request event of the host.
type Interceptor interface {
	BeginRequest(ctx HostContext) Disposition
}
