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

import (
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultMaxPoolSize is the number of idle interpreter instances kept for reuse.
	DefaultMaxPoolSize = 32
	// DefaultScriptPattern is the file name pattern of the backing script inside the application directory.
	DefaultScriptPattern = "main.*"
	// DefaultScriptDir is the base directory that holds one sub directory per application.
	DefaultScriptDir = "scripts"
)

// Config is the module configuration shared by the pool, the instances and the dispatcher.
type Config struct {
	// MaxPoolSize bounds the number of idle instances. Instances released while the
	// pool is full are destroyed. It is read without synchronization.
	MaxPoolSize int
	// ScriptDir is the base directory of the backing scripts.
	ScriptDir string
	// AppName identifies the application; the backing script lives in ScriptDir/AppName.
	AppName string
	// ScriptPattern is the glob the backing script file name must match, e.g. main.*
	// The first match whose extension has a registered binding is used.
	ScriptPattern string
	// WatchEnabled turns on hot reload of the backing script.
	WatchEnabled bool
	// WatchDebounce delays a reload after the first change notification so that
	// editors writing a file in several steps trigger one reload.
	WatchDebounce time.Duration
	// Logger is the log sink for script output and module events.
	Logger Logger
	// Registerer receives the module metrics. Nil disables metrics registration.
	Registerer prometheus.Registerer
	// Properties are exposed read-only to scripts as the `global` table.
	Properties map[string]string
}

// ScriptRoot returns the directory that holds the backing script and is watched for changes.
func (c Config) ScriptRoot() string {
	return filepath.Join(c.ScriptDir, c.AppName)
}

// NewConfig creates a new Config and applies the options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		MaxPoolSize:   DefaultMaxPoolSize,
		ScriptDir:     DefaultScriptDir,
		ScriptPattern: DefaultScriptPattern,
		WatchEnabled:  true,
		WatchDebounce: 50 * time.Millisecond,
		Logger:        DefaultLogger(),
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}
