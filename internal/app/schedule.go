package app

import (
	"fmt"
	"maps"

	"github.com/robfig/cron/v3"

	"notithing/internal/config"
	logx "notithing/pkg/logx"
)

// newSchedule builds a cron runner that hands each rule's parameters to set
// at the configured times. It is not started.
func newSchedule(rules []config.ScheduleRule, set func(map[string]bool), log logx.Logger) (*cron.Cron, error) {
	c := cron.New()
	for i, r := range rules {
		params := maps.Clone(r.Set)
		expr := r.Cron
		if _, err := c.AddFunc(expr, func() {
			log.Debug("applying scheduled parameters", logx.String("cron", expr), logx.Any("set", params))
			set(maps.Clone(params))
		}); err != nil {
			return nil, fmt.Errorf("schedule[%d]: %w", i, err)
		}
	}
	return c, nil
}
