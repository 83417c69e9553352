// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// levelFilter drops records below the minimum severity configured
// for the longest matching logger name prefix. Loggers without a
// matching prefix are never filtered.
type levelFilter struct {
	sdklog.Processor

	prefixes []string
	min      map[string]log.Severity
}

func newLevelFilter(p sdklog.Processor, levels map[string]string) sdklog.Processor {
	if len(levels) == 0 {
		return p
	}

	lf := &levelFilter{
		Processor: p,
		prefixes:  make([]string, 0, len(levels)),
		min:       make(map[string]log.Severity, len(levels)),
	}
	for name, lvl := range levels {
		lf.prefixes = append(lf.prefixes, name)
		lf.min[name] = severityOf(lvl)
	}
	slices.SortFunc(lf.prefixes, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	return lf
}

func severityOf(level string) log.Severity {
	switch strings.ToLower(level) {
	case "info":
		return log.SeverityInfo
	case "warn", "warning":
		return log.SeverityWarn
	case "error":
		return log.SeverityError
	default:
		return log.SeverityDebug
	}
}

func (lf *levelFilter) OnEmit(ctx context.Context, record *sdklog.Record) error {
	name := record.InstrumentationScope().Name
	for _, prefix := range lf.prefixes {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if record.Severity() < lf.min[prefix] {
			return nil
		}
		break
	}
	return lf.Processor.OnEmit(ctx, record)
}
