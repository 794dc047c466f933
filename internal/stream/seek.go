package stream

// seek moves the cursor to target, which must lie within [0, total samples].
//
// Codecs with inter-frame state (the MP3 bit reservoir, Opus prediction)
// produce garbage for the first frames decoded after a jump. The codec is
// therefore reset at a sync frame up to warmup frames before the target
// frame, and the frames in between are decoded and thrown away. The cursor
// is left on the target frame with the intra-frame offset pending, to be
// dropped by the next read. It returns the number of warm-up frames decoded.
func (c *cursor) seek(target int64, warmup int) int {
	frame := c.idx.FrameAt(target)

	c.codec.Reset()
	c.frameLen, c.framePos, c.skip = 0, 0, 0

	warmed := 0
	for k := max(0, frame-warmup); k < frame; k++ {
		off := c.idx.offsets[k]
		if _, err := c.codec.DecodeFrame(c.src.Data[off:c.src.End], c.frameBuf); err != nil {
			// Start over from the next frame
			c.codec.Reset()
			continue
		}
		warmed++
	}

	c.frame = frame
	if frame < c.idx.Frames() {
		c.bytePos = c.idx.offsets[frame]
		c.skip = int(target - c.idx.starts[frame])
	} else {
		c.bytePos = c.idx.end
	}
	c.samplePos = target
	return warmed
}
