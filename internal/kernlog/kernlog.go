// Package kernlog provides the kernel's single structured diagnostic sink,
// standing in for the original WeensyOS kernel.cc's log_printf/
// console_printf pair.
//
// Grounded on google-gvisor's go.mod, which carries
// github.com/sirupsen/logrus as a direct dependency and uses it for
// warning-level diagnostics in pkg/v2/service.go.
package kernlog

import "github.com/sirupsen/logrus"

// Log is the kernel-wide logger. Every package that reports a kernel event
// (fault, OOM, scheduler decision) logs through it rather than calling
// fmt.Printf directly, so a future bare-metal target can redirect the sink
// without touching call sites.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   false,
		DisableColors:   true,
		QuoteEmptyFields: true,
	})
	return l
}
