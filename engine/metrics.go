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

package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rulego/hotscript/api/types"
)

const namespace = "hotscript"

// Metrics counts dispatch outcomes, script errors and reloads. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	dispositions *prometheus.CounterVec
	scriptErrors *prometheus.CounterVec
	reloads      *prometheus.CounterVec
	unknownCodes prometheus.Counter
	constLabels  prometheus.Labels
}

// NewMetrics creates the collectors, labelled with the application name.
func NewMetrics(app string) *Metrics {
	labels := prometheus.Labels{"app": app}
	return &Metrics{
		dispositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "dispositions_total",
			Help:        "Begin-request dispositions by outcome.",
			ConstLabels: labels,
		}, []string{"disposition"}),
		scriptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "script_errors_total",
			Help:        "Script failures by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "reloads_total",
			Help:        "Hot reloads by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		unknownCodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "unknown_result_codes_total",
			Help:        "Handler results that map to no disposition.",
			ConstLabels: labels,
		}),
		constLabels: labels,
	}
}

// Register registers the collectors and a collector for the pool counters.
func (m *Metrics) Register(reg prometheus.Registerer, pool *Pool) error {
	collectors := []prometheus.Collector{m.dispositions, m.scriptErrors, m.reloads, m.unknownCodes}
	if pool != nil {
		collectors = append(collectors, newPoolCollector(pool, m.constLabels))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) disposition(d types.Disposition) {
	if m == nil {
		return
	}
	m.dispositions.WithLabelValues(d.String()).Inc()
}

func (m *Metrics) unknownCode() {
	if m == nil {
		return
	}
	m.unknownCodes.Inc()
}

func (m *Metrics) scriptError(err error) {
	if m == nil || err == nil {
		return
	}
	kind := "unknown"
	var se *types.ScriptError
	if errors.As(err, &se) {
		kind = se.Kind.String()
	}
	m.scriptErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) reloaded(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}

// poolCollector exports PoolStats at scrape time.
type poolCollector struct {
	pool      *Pool
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	created   *prometheus.Desc
	failed    *prometheus.Desc
	destroyed *prometheus.Desc
	idle      *prometheus.Desc
	capacity  *prometheus.Desc
}

func newPoolCollector(pool *Pool, labels prometheus.Labels) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, nil, labels)
	}
	return &poolCollector{
		pool:      pool,
		hits:      desc("hits_total", "Acquisitions served by an idle instance."),
		misses:    desc("misses_total", "Acquisitions that constructed an instance."),
		created:   desc("created_total", "Instances constructed."),
		failed:    desc("failed_total", "Instance constructions that failed."),
		destroyed: desc("destroyed_total", "Instances destroyed on release or stop."),
		idle:      desc("idle", "Idle instances."),
		capacity:  desc("capacity", "Maximum number of idle instances."),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.created
	ch <- c.failed
	ch <- c.destroyed
	ch <- c.idle
	ch <- c.capacity
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(s.Created))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(c.destroyed, prometheus.CounterValue, float64(s.Destroyed))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(c.pool.MaxSize()))
}
