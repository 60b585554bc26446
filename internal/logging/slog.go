// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge implements slog.Handler on top of the global zerolog logger.
// It exists for libraries that only speak slog (the supervisor's event hook)
// so their output lands in the same structured stream as everything else.
type slogBridge struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	prefix string
}

// NewSlogLogger returns an slog.Logger backed by the global zerolog logger.
func NewSlogLogger() *slog.Logger {
	return slog.New(&slogBridge{logger: Logger()})
}

func (h *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= bridgeLevel(level)
}

func (h *slogBridge) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(bridgeLevel(record.Level))
	for _, attr := range h.attrs {
		event = bridgeAttr(event, attr, h.prefix)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = bridgeAttr(event, attr, h.prefix)
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (h *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &slogBridge{logger: h.logger, attrs: merged, prefix: h.prefix}
}

func (h *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogBridge{logger: h.logger, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// bridgeAttr writes one slog attribute onto a zerolog event, flattening
// groups into dotted keys.
func bridgeAttr(event *zerolog.Event, attr slog.Attr, prefix string) *zerolog.Event {
	key := prefix + attr.Key

	switch attr.Value.Kind() {
	case slog.KindString:
		return event.Str(key, attr.Value.String())
	case slog.KindInt64:
		return event.Int64(key, attr.Value.Int64())
	case slog.KindUint64:
		return event.Uint64(key, attr.Value.Uint64())
	case slog.KindFloat64:
		return event.Float64(key, attr.Value.Float64())
	case slog.KindBool:
		return event.Bool(key, attr.Value.Bool())
	case slog.KindDuration:
		return event.Dur(key, attr.Value.Duration())
	case slog.KindTime:
		return event.Time(key, attr.Value.Time())
	case slog.KindGroup:
		for _, inner := range attr.Value.Group() {
			event = bridgeAttr(event, inner, key+".")
		}
		return event
	default:
		return event.Interface(key, attr.Value.Any())
	}
}

func bridgeLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
