// Package logging constructs the process-wide zap logger and the logr
// bridge required at the controller-runtime/client-go boundary.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap logger in JSON form, or a human-readable
// development logger when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	return zap.NewProduction()
}

// NewLogr adapts a zap logger to the logr.Logger interface expected by
// sigs.k8s.io/controller-runtime and k8s.io/client-go's klog redirection.
func NewLogr(z *zap.Logger) logr.Logger {
	return zapr.NewLogger(z)
}
