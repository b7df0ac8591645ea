package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDue accepts YYYY-MM-DD or an English phrase such as "tomorrow" or
// "next friday", resolved against now. The result is midnight UTC of that
// day. An empty string or "none" clears the date.
func parseDue(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	if t, err := time.Parse(dueLayout, s); err == nil {
		return &t, nil
	}

	r, err := dueParser.Parse(s, now)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", s, err)
	}
	if r == nil {
		return nil, fmt.Errorf("unrecognized due date %q", s)
	}
	y, m, d := r.Time.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day, nil
}
