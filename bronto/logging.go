package bronto

import (
	"go.uber.org/zap"
)

// NewLogger builds a JSON logger writing to stderr and, when logFile is set,
// appending to logFile.
func NewLogger(logFile string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if logFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logFile)
	}
	cfg.Sampling = nil
	return cfg.Build(zap.Fields(zap.String("component", "bronto")))
}
