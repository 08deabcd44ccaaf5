// Package emit builds structured log records for instrumented calls and
// routes them to local output or remote sinks per the active routing
// configuration.
package emit

import (
	"fmt"
	"time"

	"github.com/helixir/call-trace-service/internal/config"
	"github.com/helixir/call-trace-service/internal/correlation"
)

// Action identifies the phase of the instrumented call a record covers.
type Action string

const (
	ActionEnter Action = "Enter"
	ActionExit  Action = "Exit"
	ActionError Action = "Error"
)

// timestampLayout is ISO-8601 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is one structured log record for an instrumented call.
type Record struct {
	ProcessID  string    `json:"processId"`
	ParentID   string    `json:"parentId,omitempty"`
	LogLevel   string    `json:"logLevel"`
	ClassName  string    `json:"className"`
	MethodName string    `json:"methodName"`
	Action     Action    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	// Args carries the call arguments on Enter records of non-sensitive
	// calls only.
	Args []any `json:"args,omitempty"`
	// Error carries the failure description on Error records only.
	Error string `json:"error,omitempty"`
}

// NewEnter builds the record emitted before the wrapped body starts.
// Arguments are included unless the call is marked sensitive.
func NewEnter(ctx *correlation.Context, class, method, level string, args []any, sensitive bool) Record {
	rec := newRecord(ctx, class, method, level, ActionEnter)
	if !sensitive {
		rec.Args = args
	}
	return rec
}

// NewExit builds the record emitted after the wrapped body returns
// successfully.
func NewExit(ctx *correlation.Context, class, method, level string) Record {
	return newRecord(ctx, class, method, level, ActionExit)
}

// NewError builds the record emitted when the wrapped body fails. The
// level is forced to error regardless of the call's configured level.
func NewError(ctx *correlation.Context, class, method string, callErr error) Record {
	rec := newRecord(ctx, class, method, config.LevelError, ActionError)
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	return rec
}

func newRecord(ctx *correlation.Context, class, method, level string, action Action) Record {
	now := time.Now()
	rec := Record{
		ProcessID:  ctx.ProcessID,
		ParentID:   ctx.ParentID,
		LogLevel:   level,
		ClassName:  class,
		MethodName: method,
		Action:     action,
		Timestamp:  now,
	}
	rec.Message = formatMessage(rec)
	return rec
}

// formatMessage renders the record's one-line message:
//
//	<ts> [<level>: <parentId> > <processId>]: <Action> <Class>.<Method>
//
// The "<parentId> > " segment is omitted for chain roots.
func formatMessage(rec Record) string {
	ts := rec.Timestamp.Format(timestampLayout)
	if rec.ParentID != "" {
		return fmt.Sprintf("%s [%s: %s > %s]: %s %s.%s",
			ts, rec.LogLevel, rec.ParentID, rec.ProcessID, rec.Action, rec.ClassName, rec.MethodName)
	}
	return fmt.Sprintf("%s [%s: %s]: %s %s.%s",
		ts, rec.LogLevel, rec.ProcessID, rec.Action, rec.ClassName, rec.MethodName)
}
