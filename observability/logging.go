// Package observability carries the ambient logging and metrics
// collaborators H-UDP's core talks to: a structured logger and an
// optional event-sink/observer a caller can subscribe to sender and
// receiver activity, per the design note that this bookkeeping should
// never be baked into the core API.
package observability

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the default logger used by a facade instance when the
// caller doesn't supply one via WithLogger. It mirrors the teacher's
// colored, level-tagged console logger, rebuilt on logrus so log lines
// can carry structured fields instead of string-interpolated prefixes
// (the facade's startup line carries role, local_addr and remote_addr).
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return log
}

const banner = `
 _   _      _   _ ____  ____
| | | |    | | | |  _ \|  _ \
| |_| |____| | | | | | | |_) |
|  _  |____| |_| | |_| |  __/
|_| |_|     \___/|____/|_|
`

// Banner prints the startup banner the demo binary shows, the way the
// teacher's logger.Banner greets its server console.
func Banner(log *logrus.Logger, title, version string) {
	log.Infof("%s%s %s", banner, title, version)
}

// Section logs a section header, matching the teacher's logger.Section.
func Section(log *logrus.Logger, title string) {
	log.Infof("==== %s ====", title)
}
