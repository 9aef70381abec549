package hardware

import (
	"context"

	"github.com/oshokin/alarm-beacon/internal/logger"
)

// LogOutput stands in for a pin on development hosts.
type LogOutput struct {
	// ctx carries the scoped logger.
	ctx context.Context //nolint:containedctx // The output has no other way to reach its logger.
	// name labels the output in log lines.
	name string
}

// NewLogOutput returns an output that logs every change at debug level.
func NewLogOutput(ctx context.Context, name string) *LogOutput {
	return &LogOutput{
		ctx:  ctx,
		name: name,
	}
}

// Set logs the requested level.
func (o *LogOutput) Set(on bool) error {
	logger.DebugKV(o.ctx, "Output changed", "output", o.name, "on", on)

	return nil
}
