// Package testutil provides shared test helpers for tvbridge packages.
package testutil

import "go.uber.org/zap"

// Logger returns a development logger for tests.
func Logger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic("testutil.Logger: " + err.Error())
	}
	return l
}
