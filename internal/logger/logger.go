package logger

import (
	"log"
	"os"
)

// Logger is the logging surface used across the service.
// args are printed after msg; errors and maps are reported as extras.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Console writes to a std logger.
type Console struct {
	std   *log.Logger
	debug bool
}

var _ Logger = (*Console)(nil)

func NewConsole(std *log.Logger, debug bool) *Console {
	if std == nil {
		std = log.New(os.Stdout, "", log.LstdFlags)
	}
	return &Console{std: std, debug: debug}
}

func (l *Console) print(level, msg string, args []interface{}) {
	l.std.Printf("%s %s", level, msg)
	for _, arg := range args {
		l.std.Printf("  %+v", arg)
	}
}

func (l *Console) Debug(msg string, args ...interface{}) {
	if l.debug {
		l.print("DEBUG", msg, args)
	}
}

func (l *Console) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l *Console) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l *Console) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...interface{}) {}
func (Nop) Info(string, ...interface{})  {}
func (Nop) Warn(string, ...interface{})  {}
func (Nop) Error(string, ...interface{}) {}
