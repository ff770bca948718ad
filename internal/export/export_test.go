package export

import "time"

func (s *Service) DisableCompression() { s.noCompress = true }

func (s *Service) SetClock(now func() time.Time) { s.now = now }
