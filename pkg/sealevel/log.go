package sealevel

import (
	"fmt"

	"k8s.io/klog/v2"
)

// Logger receives program log lines.
type Logger interface {
	Log(s string)
}

// LogRecorder keeps every program log line in memory.
type LogRecorder struct {
	Logs []string
}

func (r *LogRecorder) Log(s string) {
	klog.V(2).Info(s)
	r.Logs = append(r.Logs, s)
}

func (execCtx *ExecutionCtx) logf(format string, args ...any) {
	if execCtx.Log == nil {
		return
	}
	execCtx.Log.Log(fmt.Sprintf(format, args...))
}
