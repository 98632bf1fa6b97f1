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

package main

import (
	"fmt"
	"time"

	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/utils/maps"
	"gopkg.in/ini.v1"
)

// Config is the file configuration of the server.
//
//	[server]
//	addr = :9090
//	static = ./public
//
//	[hotscript]
//	scriptDir = scripts
//	appName = default
//	maxPoolSize = 32
//	watchDebounce = 50ms
//
//	[global]
//	env = prod
type Config struct {
	Server    ServerConfig
	Hotscript EngineConfig
	// Global is exposed to scripts as the read-only global table.
	Global map[string]string
}

// ServerConfig is the [server] section.
type ServerConfig struct {
	Addr        string
	CertFile    string
	CertKeyFile string
	// Static is served for requests the scripts continue. Empty answers 404.
	Static string
	// Debug switches to a development logger.
	Debug bool
}

// EngineConfig is the [hotscript] section.
type EngineConfig struct {
	ScriptDir     string
	AppName       string
	ScriptPattern string
	MaxPoolSize   int
	WatchEnabled  bool
	WatchDebounce time.Duration
}

// DefaultConfig is used when no config file is given.
var DefaultConfig = Config{
	Server: ServerConfig{Addr: ":9090"},
	Hotscript: EngineConfig{
		ScriptDir:     types.DefaultScriptDir,
		AppName:       "default",
		ScriptPattern: types.DefaultScriptPattern,
		MaxPoolSize:   types.DefaultMaxPoolSize,
		WatchEnabled:  true,
		WatchDebounce: 50 * time.Millisecond,
	},
}

// LoadConfig reads the ini file at path over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig
	c.Global = map[string]string{}
	if path == "" {
		return c, nil
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return c, fmt.Errorf("load config %s: %w", path, err)
	}
	if section, err := cfg.GetSection("server"); err == nil {
		if err := maps.Map2Struct(section.KeysHash(), &c.Server); err != nil {
			return c, fmt.Errorf("section server: %w", err)
		}
	}
	if section, err := cfg.GetSection("hotscript"); err == nil {
		if err := maps.Map2Struct(section.KeysHash(), &c.Hotscript); err != nil {
			return c, fmt.Errorf("section hotscript: %w", err)
		}
	}
	if section, err := cfg.GetSection("global"); err == nil {
		c.Global = section.KeysHash()
	}
	return c, nil
}

// Options converts the engine settings to engine options.
func (c Config) Options(logger types.Logger) []types.Option {
	return []types.Option{
		types.WithScriptDir(c.Hotscript.ScriptDir),
		types.WithAppName(c.Hotscript.AppName),
		types.WithScriptPattern(c.Hotscript.ScriptPattern),
		types.WithMaxPoolSize(c.Hotscript.MaxPoolSize),
		types.WithWatchEnabled(c.Hotscript.WatchEnabled),
		types.WithWatchDebounce(c.Hotscript.WatchDebounce),
		types.WithProperties(c.Global),
		types.WithLogger(logger),
	}
}
