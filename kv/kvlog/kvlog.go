// Package kvlog constructs the zap.Logger every other package accepts,
// optionally routing output through a rotating file sink instead of
// stderr (mirrors the teacher's erigon-lib zap setup).
package kvlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/graphkv/kvcore/kv/config"
)

// New builds a production-style zap.Logger. If cfg.LogFilePath is set,
// output is written through a lumberjack rotating sink instead of stderr.
func New(cfg config.Config) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	var sink zapcore.WriteSyncer
	if cfg.LogFilePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(zapcore.InfoLevel))
	return zap.New(core, zap.AddCaller())
}
