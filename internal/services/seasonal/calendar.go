package seasonal

import "time"

// Holiday is one fixed calendar date that receives a one-off adjustment
// factor on top of the periodic indices.
type Holiday struct {
	Name  string `yaml:"name"`
	Month int    `yaml:"month"`
	Day   int    `yaml:"day"`
}

// Calendar holds the configured holiday dates. Immutable after creation.
type Calendar struct {
	byKey map[int]Holiday
}

// NewCalendar builds a calendar from configured holidays.
func NewCalendar(holidays []Holiday) *Calendar {
	c := &Calendar{byKey: make(map[int]Holiday, len(holidays))}
	for _, h := range holidays {
		c.byKey[h.Month*100+h.Day] = h
	}
	return c
}

// Lookup returns the holiday falling on t, if any.
func (c *Calendar) Lookup(t time.Time) (Holiday, bool) {
	if c == nil {
		return Holiday{}, false
	}
	h, ok := c.byKey[int(t.Month())*100+t.Day()]
	return h, ok
}

// Len returns the number of configured holidays.
func (c *Calendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byKey)
}
