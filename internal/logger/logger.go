// README: Logrus setup shared by the API binary and middleware.
package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger and returns it. Format is
// "json" for production or anything else for human-readable text.
func Setup(level, format string) *logrus.Logger {
	log := logrus.StandardLogger()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	log.SetOutput(os.Stdout)
	return log
}
