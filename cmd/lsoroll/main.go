// Command lsoroll evaluates short option rolls from the terminal using the
// same engine as the HTTP server.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetLevel(logrus.WarnLevel)
	if os.Getenv("LOG_LEVEL") == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
