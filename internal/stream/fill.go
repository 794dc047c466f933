package stream

// fill writes one fragment of PCM. Pending seeks are applied first, then
// samples are pulled from the cursor until the fragment is full, the loop
// end is reached or the source runs out. Whatever is left of the fragment is
// silence.
func (s *Stream) fill(frag []byte) {
	s.ctl.mu.Lock()
	loop := s.ctl.loop
	target := s.ctl.seekTo
	s.ctl.seekTo = noSeek
	draining := s.ctl.draining
	s.ctl.mu.Unlock()

	if target != noSeek {
		warmed := s.cur.seek(target, s.warmup)
		s.log.Debug().
			Int64("sample", target).
			Int("frame", s.cur.frame).
			Int("warmup", warmed).
			Msg("seek applied")
	}

	frameBytes := s.idx.channels * 2
	written, ended := 0, false
	if !draining {
		written, ended = s.pull(frag, len(frag)/frameBytes, loop)
	}
	clear(frag[written*frameBytes:])

	notify := false
	s.ctl.mu.Lock()
	// A seek that arrived during the fill has already published its target
	if s.ctl.seekTo == noSeek {
		s.ctl.position = s.cur.samplePos
		if ended {
			s.ctl.draining = true
			if !s.ctl.finished {
				s.ctl.finished = true
				notify = true
			}
		}
	}
	s.ctl.mu.Unlock()

	if notify {
		s.log.Debug().Int64("sample", s.cur.samplePos).Msg("playback finished")
		s.sink.Notify(Event{Type: EventFinished})
	}
}

// pull reads up to need sample frames into frag, wrapping at the loop end in
// LoopForever mode. It reports true once playback has ended.
func (s *Stream) pull(frag []byte, need int, loop LoopSpec) (int, bool) {
	frameBytes := s.idx.channels * 2
	start, end := loop.bounds(s.idx.sampleRate, s.idx.totalSamples)

	written := 0
	emptyWraps := 0
	for written < need {
		want, clamped := loop.clamp(s.cur.samplePos, need-written, end)
		n, err := s.cur.read(frag[written*frameBytes:], want)
		written += n
		if err != nil {
			s.log.Warn().Err(err).Int64("sample", s.cur.samplePos).Msg("decode failed, ending playback")
			return written, true
		}
		if !clamped && n == want {
			continue
		}

		// Loop end or end of source
		if loop.Mode != LoopForever {
			return written, true
		}
		if n > 0 {
			emptyWraps = 0
		} else if emptyWraps++; emptyWraps > 1 {
			// The loop region yields nothing
			s.log.Warn().Int64("start", start).Int64("end", end).Msg("empty loop region, ending playback")
			return written, true
		}
		s.cur.seek(start, s.warmup)
		s.wraps.Add(1)
	}
	return written, false
}
