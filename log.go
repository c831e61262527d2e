package nativeimg

import (
	"strings"

	"github.com/pressly/lg"
	"github.com/sirupsen/logrus"
)

// Logger backs the lg package helpers used across nativeimg and its
// backends. Swap its formatter or output to taste.
var Logger *logrus.Logger

func init() {
	if lg.DefaultLogger == nil {
		lg.DefaultLogger = logrus.New()
	}
	Logger = lg.DefaultLogger
}

// SetLogLevel accepts a logrus level name in any case.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}
