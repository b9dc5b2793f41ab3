// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package transform implements graph-rewriting primitives over a tree of module.Unit objects owning
// computation graphs (ir.Graph):
//
//   - Collect and Restore the variables (parameters and buffers) of a unit, keyed by dotted path.
//   - Lift a unit to the data-free meta device and back: NewMetaLift and Transformer.LiftToMeta.
//   - Move a unit, its graphs and their descriptors to another device: Transformer.MoveToDevice.
//   - Canonicalize graphs after a rewrite: Transformer.Canonicalize.
//   - Add a new input to a graph keeping its signature consistent: Transformer.AddGraphInput.
//
// All operations work in place, synchronously, and are not safe for concurrent use on the same tree.
package transform

import (
	"k8s.io/klog/v2"
)

// Logger used by the Transformer for debug dumps and warnings.
type Logger interface {
	Debugf(format string, args ...any)
	Warningf(format string, args ...any)
}

// KlogLogger is a Logger backed by klog: debug messages are logged at a configurable verbosity level
// (klog.V), warnings with klog.Warningf.
type KlogLogger struct {
	level klog.Level
}

// DefaultDebugLevel is the klog verbosity level used for debug messages by NewKlogLogger.
const DefaultDebugLevel klog.Level = 1

// NewKlogLogger creates a KlogLogger logging debug messages at DefaultDebugLevel.
func NewKlogLogger() *KlogLogger {
	return &KlogLogger{level: DefaultDebugLevel}
}

// WithLevel sets the klog verbosity level of the debug messages. It returns the logger itself.
func (l *KlogLogger) WithLevel(level klog.Level) *KlogLogger {
	l.level = level
	return l
}

// Level of the debug messages.
func (l *KlogLogger) Level() klog.Level { return l.level }

// Debugf implements Logger.
func (l *KlogLogger) Debugf(format string, args ...any) {
	klog.V(l.level).Infof(format, args...)
}

// Warningf implements Logger.
func (l *KlogLogger) Warningf(format string, args ...any) {
	klog.Warningf(format, args...)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)   {}
func (nopLogger) Warningf(string, ...any) {}

// Transformer holds the collaborators of the graph transformations. Currently only the Logger.
type Transformer struct {
	logger Logger
}

// New creates a Transformer using the given logger. If logger is nil, nothing is logged.
func New(logger Logger) *Transformer {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Transformer{logger: logger}
}

// Default Transformer, logging with klog.
var Default = New(NewKlogLogger())

// Logger returns the logger used by the Transformer.
func (t *Transformer) Logger() Logger { return t.logger }
