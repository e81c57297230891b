package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/finegrain/internal/checker"
)

// functionObject converts fn to a Risor map.
func functionObject(fn checker.Function) object.Object {
	return object.NewMap(map[string]object.Object{
		"module":    object.NewString(fn.Module),
		"name":      object.NewString(fn.Name),
		"fullname":  object.NewString(fn.Fullname),
		"class":     object.NewString(fn.Class),
		"line":      object.NewInt(int64(fn.Line)),
		"end_line":  object.NewInt(int64(fn.EndLine)),
		"signature": object.NewString(fn.Signature),
		"args":      stringsToList(fn.Args),
		"calls":     stringsToList(fn.Calls),
		"decorated": object.NewBool(fn.Decorated),
	})
}

func stringsToList(ss []string) object.Object {
	items := make([]object.Object, 0, len(ss))
	for _, s := range ss {
		items = append(items, object.NewString(s))
	}
	return object.NewList(items)
}

// makeReportFn creates the "report" builtin.
//
// report(message) or report(line, message). Without a line the report is
// placed on the function definition.
func makeReportFn(defLine int, emit func(checker.Report)) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		switch len(args) {
		case 1:
			msg, err := toString(args[0])
			if err != nil {
				return object.Errorf("report: message: %v", err)
			}
			emit(checker.Report{Line: defLine, Message: msg})
		case 2:
			line, err := toInt64(args[0])
			if err != nil {
				return object.Errorf("report: line: %v", err)
			}
			msg, err := toString(args[1])
			if err != nil {
				return object.Errorf("report: message: %v", err)
			}
			emit(checker.Report{Line: int(line), Message: msg})
		default:
			return object.Errorf("report: expected 1 or 2 arguments, got %d", len(args))
		}
		return object.Nil
	})
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
