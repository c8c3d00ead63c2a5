package logger

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type levelStat struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*levelStat

// countingHook tallies warnings and errors per component for the run report.
type countingHook struct{}

func (h *countingHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *countingHook) Fire(entry *logrus.Entry) error {
	component, _ := entry.Data["component"].(string)
	if component == "" {
		component = "unknown"
	}
	v, _ := components.LoadOrStore(component, &levelStat{})
	ls := v.(*levelStat)
	if entry.Level == logrus.WarnLevel {
		atomic.AddInt64(&ls.warns, 1)
	} else {
		atomic.AddInt64(&ls.errors, 1)
	}
	return nil
}

// Counts returns the number of warnings and errors logged so far per component.
func Counts() map[string][2]int64 {
	out := make(map[string][2]int64)
	components.Range(func(k, v any) bool {
		ls := v.(*levelStat)
		out[k.(string)] = [2]int64{atomic.LoadInt64(&ls.warns), atomic.LoadInt64(&ls.errors)}
		return true
	})
	return out
}

// LogReport emits a single summary line with warning and error totals.
func LogReport(log *Log) {
	var warns, errs int64
	fields := Fields{}
	for name, c := range Counts() {
		warns += c[0]
		errs += c[1]
		fields["warns_"+name] = c[0]
		fields["errors_"+name] = c[1]
	}
	fields["warns_total"] = warns
	fields["errors_total"] = errs
	log.WithComponent("report").WithFields(fields).Info("run report")
}
