/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wmlogger

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.uber.org/zap"
)

// Module is the name of the Watermill module used for logging.
const Module = "watermill"

// Logger wraps the structured logger and implements the Watermill logger adapter interface.
type Logger struct {
	logger *log.Log
	fields watermill.LogFields
}

// New returns a new Watermill logger adapter.
func New() *Logger {
	return &Logger{logger: log.New(Module)}
}

// Error logs an error.
func (l *Logger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(msg, append(l.zapFields(fields), log.WithError(err))...)
}

// Info logs an informational message. Watermill outputs too many INFO logs, so the
// DEBUG log level is used.
func (l *Logger) Info(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, l.zapFields(fields)...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, l.zapFields(fields)...)
}

// Trace logs a trace message. Note that this implementation uses a debug log for trace.
func (l *Logger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debug(msg, l.zapFields(fields)...)
}

// With returns a new logger with the supplied fields so that each log contains these fields.
func (l *Logger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &Logger{
		logger: l.logger,
		fields: l.fields.Add(fields),
	}
}

func (l *Logger) zapFields(additionalFields watermill.LogFields) []zap.Field {
	all := l.fields.Add(additionalFields)

	fields := make([]zap.Field, 0, len(all))

	for k, v := range all {
		fields = append(fields, zap.Any(k, v))
	}

	return fields
}
