package logger

import (
	"fmt"
	"io"

	echolog "github.com/labstack/gommon/log"
)

// EchoAdapter routes echo's internal logging (panics caught by the recover
// middleware, server errors) into a module logger.
//
//	e := echo.New()
//	e.Logger = logger.NewEchoAdapter(central.Module("echo"))
type EchoAdapter struct {
	log Logger
}

// NewEchoAdapter wraps log. A nil log discards everything.
func NewEchoAdapter(log Logger) *EchoAdapter {
	if log == nil {
		log = NewSlogLogger(io.Discard, LogLevelError, nil)
	}
	return &EchoAdapter{log: log}
}

// Output, prefix, level and header are owned by the central logger.
func (a *EchoAdapter) Output() io.Writer         { return io.Discard }
func (a *EchoAdapter) SetOutput(io.Writer)       {}
func (a *EchoAdapter) Prefix() string            { return "" }
func (a *EchoAdapter) SetPrefix(string)          {}
func (a *EchoAdapter) Level() echolog.Lvl        { return echolog.INFO }
func (a *EchoAdapter) SetLevel(echolog.Lvl)      {}
func (a *EchoAdapter) SetHeader(string)          {}
func (a *EchoAdapter) Print(i ...any)            { a.log.Info(fmt.Sprint(i...)) }
func (a *EchoAdapter) Printf(f string, v ...any) { a.log.Info(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Printj(j echolog.JSON)     { a.json(LogLevelInfo, j) }
func (a *EchoAdapter) Debug(i ...any)            { a.log.Debug(fmt.Sprint(i...)) }
func (a *EchoAdapter) Debugf(f string, v ...any) { a.log.Debug(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Debugj(j echolog.JSON)     { a.json(LogLevelDebug, j) }
func (a *EchoAdapter) Info(i ...any)             { a.log.Info(fmt.Sprint(i...)) }
func (a *EchoAdapter) Infof(f string, v ...any)  { a.log.Info(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Infoj(j echolog.JSON)      { a.json(LogLevelInfo, j) }
func (a *EchoAdapter) Warn(i ...any)             { a.log.Warn(fmt.Sprint(i...)) }
func (a *EchoAdapter) Warnf(f string, v ...any)  { a.log.Warn(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Warnj(j echolog.JSON)      { a.json(LogLevelWarn, j) }
func (a *EchoAdapter) Error(i ...any)            { a.log.Error(fmt.Sprint(i...)) }
func (a *EchoAdapter) Errorf(f string, v ...any) { a.log.Error(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Errorj(j echolog.JSON)     { a.json(LogLevelError, j) }

// Fatal and Panic variants log at error level and panic. They never exit the
// process so the server can still shut down cleanly.
func (a *EchoAdapter) Fatal(i ...any)            { a.panic(fmt.Sprint(i...)) }
func (a *EchoAdapter) Fatalf(f string, v ...any) { a.panic(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Fatalj(j echolog.JSON)     { a.panic(fmt.Sprint(j)) }
func (a *EchoAdapter) Panic(i ...any)            { a.panic(fmt.Sprint(i...)) }
func (a *EchoAdapter) Panicf(f string, v ...any) { a.panic(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Panicj(j echolog.JSON)     { a.panic(fmt.Sprint(j)) }

func (a *EchoAdapter) json(level LogLevel, j echolog.JSON) {
	fields := make([]Field, 0, len(j))
	for k, v := range j {
		fields = append(fields, Any(k, v))
	}
	a.log.Log(level, "echo", fields...)
}

func (a *EchoAdapter) panic(msg string) {
	a.log.Error(msg)
	panic(msg)
}
