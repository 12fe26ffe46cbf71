// Package logging creates zap loggers whose levels are adjustable per package.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar is the environment variable holding the initial level list, see Configure.
//
//	HUGEPLANE_LOG=W,channel=D
const EnvVar = "HUGEPLANE_LOG"

var sink = zapcore.Lock(os.Stderr)

var encoder = func() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return zapcore.NewJSONEncoder(ec)
}()

// New creates a logger for a package.
// Its level follows SetLevel and Configure calls made at any time.
//
//	var logger = logging.New("channel")
func New(pkg string) *zap.Logger {
	core := zapcore.NewCore(encoder, sink, levels.get(pkg))
	return zap.New(core).Named(pkg)
}

// Sync flushes buffered log entries.
func Sync() error {
	return sink.Sync()
}
