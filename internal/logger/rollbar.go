package logger

import (
	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
)

// Rollbar reports to rollbar and mirrors every entry to the console.
type Rollbar struct {
	console *Console
}

var _ Logger = (*Rollbar)(nil)

// RollbarOptions configures the rollbar notifier.
type RollbarOptions struct {
	Token       string
	Environment string
	Host        string
	CodeVersion string
}

func NewRollbar(console *Console, opts RollbarOptions) *Rollbar {
	rollbar.SetToken(opts.Token)
	rollbar.SetEnvironment(opts.Environment)
	rollbar.SetServerHost(opts.Host)
	rollbar.SetCodeVersion(opts.CodeVersion)
	rollbar.SetStackTracer(rollbarerrors.StackTracer)
	rollbar.SetEnabled(opts.Token != "")
	return &Rollbar{console: console}
}

// Close flushes pending reports.
func (l *Rollbar) Close() {
	rollbar.Close()
}

// expected args: error, map[string]interface{}
func report(msg string, args []interface{}) []interface{} {
	out := make([]interface{}, 0, len(args)+1)
	out = append(out, msg)
	return append(out, args...)
}

func (l *Rollbar) Debug(msg string, args ...interface{}) {
	rollbar.Debug(report(msg, args)...)
	l.console.Debug(msg, args...)
}

func (l *Rollbar) Info(msg string, args ...interface{}) {
	rollbar.Info(report(msg, args)...)
	l.console.Info(msg, args...)
}

func (l *Rollbar) Warn(msg string, args ...interface{}) {
	rollbar.Warning(report(msg, args)...)
	l.console.Warn(msg, args...)
}

func (l *Rollbar) Error(msg string, args ...interface{}) {
	rollbar.Error(report(msg, args)...)
	l.console.Error(msg, args...)
}
