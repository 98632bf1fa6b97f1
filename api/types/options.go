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
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithMaxPoolSize is an option that sets the maximum number of idle instances.
func WithMaxPoolSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return errors.New("max pool size must be greater than 0")
		}
		c.MaxPoolSize = size
		return nil
	}
}

// WithScriptDir is an option that sets the base directory of the backing scripts.
func WithScriptDir(dir string) Option {
	return func(c *Config) error {
		c.ScriptDir = dir
		return nil
	}
}

// WithAppName is an option that sets the application name segment of the script path.
func WithAppName(appName string) Option {
	return func(c *Config) error {
		c.AppName = appName
		return nil
	}
}

// WithScriptPattern is an option that sets the backing script file name pattern.
func WithScriptPattern(pattern string) Option {
	return func(c *Config) error {
		if pattern == "" {
			return errors.New("script pattern can not be empty")
		}
		c.ScriptPattern = pattern
		return nil
	}
}

// WithWatchEnabled is an option that enables or disables hot reload.
func WithWatchEnabled(enabled bool) Option {
	return func(c *Config) error {
		c.WatchEnabled = enabled
		return nil
	}
}

// WithWatchDebounce is an option that sets the delay between a change notification and the reload.
func WithWatchDebounce(d time.Duration) Option {
	return func(c *Config) error {
		c.WatchDebounce = d
		return nil
	}
}

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithRegisterer is an option that sets the prometheus registerer for the module metrics.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(c *Config) error {
		c.Registerer = registerer
		return nil
	}
}

// WithProperties is an option that sets the properties exposed to scripts as `global`.
func WithProperties(properties map[string]string) Option {
	return func(c *Config) error {
		c.Properties = properties
		return nil
	}
}
