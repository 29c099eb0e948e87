package logger

import (
	"go.uber.org/zap"
)

// Log is the process-wide logger. It is a no-op logger until Init runs so
// packages and tests can log unconditionally.
var Log = zap.NewNop()

func Init(production bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if production {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return err
	}
	Log = l
	return nil
}

func Sync() {
	_ = Log.Sync()
}
