// Package log configures logrus output for delta_notifier.
package log

import (
	"github.com/sirupsen/logrus"
)

// NewFormatter returns a JSON formatter when json is set, a sorted key=value
// text formatter otherwise. Both carry RFC3339 timestamps with milliseconds.
func NewFormatter(json bool) logrus.Formatter {
	const timestampFormat = "2006-01-02T15:04:05.000Z07:00"
	if json {
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        timestampFormat,
		DisableLevelTruncation: true,
		PadLevelText:           true,
		QuoteEmptyFields:       true,
		SortingFunc:            sortFields,
	}
}

// sortFields keeps time, level and msg first, then component, then the rest
// alphabetically.
func sortFields(keys []string) {
	rank := func(k string) int {
		switch k {
		case logrus.FieldKeyTime:
			return 0
		case logrus.FieldKeyLevel:
			return 1
		case logrus.FieldKeyMsg:
			return 2
		case "component":
			return 3
		}
		return 4
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if rank(a) < rank(b) || (rank(a) == rank(b) && a <= b) {
				break
			}
			keys[j-1], keys[j] = b, a
		}
	}
}

// Setup applies level and format to the standard logger
func Setup(level string, json bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(NewFormatter(json))
	return nil
}

