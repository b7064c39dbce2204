// Package logging wires up the shared logrus setup used across every
// PeerDrive client component.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a component-scoped logger. level is parsed with
// logrus.ParseLevel; an invalid or empty level falls back to Info.
func New(component, level string) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log.WithField("component", component)
}
