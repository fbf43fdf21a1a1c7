package config

import (
	"reflect"
	"strings"

	logx "notithing/pkg/logx"
)

// Section names reported by SummarizeConfigChange.
const (
	SectionTiming   = "timing"
	SectionFlow     = "flow"
	SectionDisplay  = "display"
	SectionFilter   = "filter"
	SectionRelay    = "relay"
	SectionNotelog  = "notelog"
	SectionLogging  = "logging"
	SectionSchedule = "schedule"
	SectionPprof    = "pprof"
)

// SummarizeConfigChange lists the sections that differ between oldCfg and
// newCfg, plus log fields describing the new values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.ActivityTimeout != newCfg.ActivityTimeout ||
		oldCfg.PopupTimeout != newCfg.PopupTimeout ||
		oldCfg.PollInterval != newCfg.PollInterval {
		changed = append(changed, SectionTiming)
		attrs = append(attrs,
			logx.String("activity_timeout", newCfg.ActivityTimeout),
			logx.String("popup_timeout", newCfg.PopupTimeout),
			logx.String("poll_interval", newCfg.PollInterval),
		)
	}

	if oldCfg.QueueLen != newCfg.QueueLen ||
		oldCfg.TBF != newCfg.TBF ||
		oldCfg.UrgencyCheck != newCfg.UrgencyCheck ||
		oldCfg.Fullscreen != newCfg.Fullscreen {
		changed = append(changed, SectionFlow)
		attrs = append(attrs,
			logx.Int("queue_len", newCfg.QueueLen),
			logx.Int("tbf.size", newCfg.TBF.Size),
			logx.String("tbf.tick", newCfg.TBF.Tick),
			logx.Bool("urgency_check", newCfg.UrgencyCheck),
			logx.Bool("fullscreen.check", newCfg.Fullscreen.Check),
		)
	}

	if oldCfg.Cleanup != newCfg.Cleanup ||
		oldCfg.HistoryLen != newCfg.HistoryLen ||
		oldCfg.StatusNotify != newCfg.StatusNotify {
		changed = append(changed, SectionDisplay)
		attrs = append(attrs,
			logx.Bool("cleanup", newCfg.Cleanup),
			logx.Int("history_len", newCfg.HistoryLen),
			logx.Bool("status_notify", newCfg.StatusNotify),
		)
	}

	if strings.TrimSpace(oldCfg.FilterFile) != strings.TrimSpace(newCfg.FilterFile) {
		changed = append(changed, SectionFilter)
		attrs = append(attrs, logx.String("filter_file", newCfg.FilterFile))
	}

	if !reflect.DeepEqual(oldCfg.Relay, newCfg.Relay) {
		changed = append(changed, SectionRelay)
		attrs = append(attrs,
			logx.String("relay.driver", newCfg.Relay.Driver),
			logx.Int("relay.pub", len(newCfg.Relay.PubBind)+len(newCfg.Relay.PubConnect)),
			logx.Int("relay.sub", len(newCfg.Relay.SubBind)+len(newCfg.Relay.SubConnect)),
		)
	}

	if oldCfg.Notelog != newCfg.Notelog {
		changed = append(changed, SectionNotelog)
		attrs = append(attrs,
			logx.String("notelog.driver", newCfg.Notelog.Driver),
			logx.String("notelog.path", newCfg.Notelog.Path),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, SectionSchedule)
		attrs = append(attrs, logx.Int("schedule.rules", len(newCfg.Schedule)))
	}

	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, SectionPprof)
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.address", newCfg.Pprof.Address),
		)
	}

	return changed, attrs
}

// LogConfig maps the logging section onto the logx service config.
// Status forwarding follows status_notify.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    ExpandHome(c.Logging.File.Path),
		},
		Status: logx.StatusConfig{
			Enabled:    c.StatusNotify,
			MinLevel:   "info",
			RatePerSec: 1,
		},
	}
}
