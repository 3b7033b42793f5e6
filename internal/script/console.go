package script

import "go.uber.org/zap"

// logPrinter sends console.* output of a script to the invocation logger
type logPrinter struct {
	logger *zap.Logger
}

func (p *logPrinter) Log(s string) {
	p.logger.Info(s, zap.String("source", "console"))
}

func (p *logPrinter) Warn(s string) {
	p.logger.Warn(s, zap.String("source", "console"))
}

func (p *logPrinter) Error(s string) {
	p.logger.Error(s, zap.String("source", "console"))
}
