package service

import "time"

// SetClock pins the time used for recent-activity windows.
func (s *StatsService) SetClock(now func() time.Time) { s.now = now }
