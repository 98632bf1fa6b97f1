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

// Command hotscript serves HTTP with a Lua or JavaScript interceptor in front
// of a static file handler. Scripts are reloaded when they change on disk.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/endpoint/rest"
	"github.com/rulego/hotscript/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:          "hotscript",
		Short:        "HTTP server with hot reloaded request scripts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := LoadConfig(configFile)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd.Flags(), &c); err != nil {
				return err
			}
			return serve(cmd.Context(), c)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (ini)")
	flags.String("addr", DefaultConfig.Server.Addr, "listen address")
	flags.String("static", "", "directory served for requests the scripts continue")
	flags.String("script-dir", DefaultConfig.Hotscript.ScriptDir, "base directory of the application scripts")
	flags.String("app", DefaultConfig.Hotscript.AppName, "application name, the script sub directory")
	flags.Int("max-pool-size", DefaultConfig.Hotscript.MaxPoolSize, "maximum number of idle interpreters")
	flags.Bool("no-watch", false, "disable hot reload")
	flags.Bool("debug", false, "development logging")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hotscript v%s\n", version)
		},
	})
	return cmd
}

// applyFlags overrides file settings with the flags set on the command line.
func applyFlags(flags *pflag.FlagSet, c *Config) error {
	var err error
	if flags.Changed("addr") {
		c.Server.Addr, err = flags.GetString("addr")
	}
	if err == nil && flags.Changed("static") {
		c.Server.Static, err = flags.GetString("static")
	}
	if err == nil && flags.Changed("script-dir") {
		c.Hotscript.ScriptDir, err = flags.GetString("script-dir")
	}
	if err == nil && flags.Changed("app") {
		c.Hotscript.AppName, err = flags.GetString("app")
	}
	if err == nil && flags.Changed("max-pool-size") {
		c.Hotscript.MaxPoolSize, err = flags.GetInt("max-pool-size")
	}
	if err == nil && flags.Changed("no-watch") {
		var noWatch bool
		noWatch, err = flags.GetBool("no-watch")
		c.Hotscript.WatchEnabled = !noWatch
	}
	if err == nil && flags.Changed("debug") {
		c.Server.Debug, err = flags.GetBool("debug")
	}
	return err
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(ctx context.Context, c Config) error {
	zl, err := newLogger(c.Server.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := types.NewZapLogger(zl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := append(c.Options(logger), types.WithRegisterer(reg))
	e, err := engine.New(types.NewConfig(), opts...)
	if err != nil {
		return err
	}
	defer e.Stop()

	server := &rest.Rest{
		Config:      rest.Config{Addr: c.Server.Addr, CertFile: c.Server.CertFile, CertKeyFile: c.Server.CertKeyFile},
		Interceptor: e,
		Gatherer:    reg,
		Logger:      logger,
	}
	router := server.Router()
	if c.Server.Static != "" {
		router.NotFound = http.FileServer(http.Dir(c.Server.Static))
	}
	server.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusNoContent)
	})

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	logger.Printf("serving scripts from %s/%s", c.Hotscript.ScriptDir, c.Hotscript.AppName)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Printf("stopped server")
	return nil
}
