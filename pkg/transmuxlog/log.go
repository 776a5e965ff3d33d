// Package transmuxlog provides the per-component logrus entries used across
// the pipeline. Every component gets a logger tagged with its name so log
// lines can be filtered by subsystem, the way mediamtx tags its internal
// loggers.
package transmuxlog

import "github.com/sirupsen/logrus"

var base = logrus.StandardLogger()

// SetOutput lets a host application redirect every component logger at
// once, e.g. to a file or a structured collector.
func SetOutput(l *logrus.Logger) {
	base = l
}

// For returns a logger entry tagged with the given component name.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
