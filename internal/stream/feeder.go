package stream

// run is the feeder goroutine. It registers with the sink, prefills one
// fragment so playback can start at once, then fills a fragment for every
// EventFragment until EventQuit arrives.
func (s *Stream) run() {
	defer close(s.done)

	events, err := s.sink.Register()
	if err != nil {
		s.startErr = err
		close(s.started)
		return
	}

	s.cycle()
	close(s.started)

	for ev := range events {
		switch ev.Type {
		case EventQuit:
			s.log.Debug().Msg("feeder exiting")
			return
		case EventFragment:
			// Demand queued ahead of the quit event is not worth decoding
			if s.quit.Load() {
				continue
			}
			s.cycle()
		}
	}
}

// cycle fills and submits one free fragment, if the sink has one
func (s *Stream) cycle() {
	frag := s.sink.Fragment()
	if frag == nil {
		return
	}
	s.fill(frag)
	s.sink.Submit(frag)
}
