/*
 * Copyright 2025 tomoncle.
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

package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// MetricsConfig enables the prometheus collectors. Registerer defaults to
// prometheus.DefaultRegisterer.
type MetricsConfig struct {
	Enabled    bool                  `json:"enabled" yaml:"enabled"`
	Namespace  string                `json:"namespace" yaml:"namespace"`
	Registerer prometheus.Registerer `json:"-" yaml:"-"`
}

// Save outcomes recorded by Metrics.ObserveSave.
const (
	SaveCommitted = "committed"
	SaveConflict  = "conflict"
	SaveRejected  = "rejected"
	SaveFailed    = "failed"
)

// Metrics counts statements and unit of work outcomes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	queries  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	saves    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them. Collectors already
// registered under the same names are reused.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultContextName
	}

	var (
		m   Metrics
		err error
	)
	m.queries, err = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "db_queries_total",
		Help:      "Executed statements by operation",
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	m.errors, err = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "db_query_errors_total",
		Help:      "Failed statements by operation and error kind",
	}, []string{"operation", "kind"}))
	if err != nil {
		return nil, err
	}
	m.duration, err = registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "db_query_duration_seconds",
		Help:      "Statement latency by operation",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	m.saves, err = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "uow_saves_total",
		Help:      "Unit of work saves by outcome",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func registerCollector[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

var _ bun.QueryHook = (*Metrics)(nil)

func (m *Metrics) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (m *Metrics) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if m == nil {
		return
	}
	op := strings.ToLower(event.Operation())
	m.queries.WithLabelValues(op).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(event.StartTime).Seconds())
	if event.Err == nil || errors.Is(event.Err, sql.ErrNoRows) {
		return
	}
	if is, kind := IsSqlError(event.Err); is {
		m.errors.WithLabelValues(op, kind.String()).Inc()
	} else {
		m.errors.WithLabelValues(op, "other").Inc()
	}
}

// ObserveSave records the outcome of one unit of work save.
func (m *Metrics) ObserveSave(outcome string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(outcome).Inc()
}
