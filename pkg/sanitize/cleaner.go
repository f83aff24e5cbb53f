package sanitize

// Cleaner strips escape sequences from a byte stream incrementally.
// Sequences split across chunk boundaries are buffered until enough
// bytes arrive to decide, with flush guards so a stuck partial
// sequence cannot grow the buffer without bound. Used where output is
// consumed chunk by chunk instead of as one captured string, e.g.
// piping an interactive shell into a file.
type Cleaner struct {
	buffer []byte
}

const (
	cleanerFlushLimit = 8192
	maxCSILength      = 256
	maxOSCLength      = 512
)

func NewCleaner() *Cleaner {
	return &Cleaner{
		buffer: make([]byte, 0, 1024),
	}
}

// Process filters one chunk and returns the printable bytes ready to
// emit. Bytes belonging to an incomplete escape sequence stay buffered
// for the next call.
func (c *Cleaner) Process(data []byte) []byte {
	// A ridiculously large pending buffer means a stuck partial
	// sequence, flush it raw instead of risking unbounded growth
	if len(c.buffer) > cleanerFlushLimit {
		out := make([]byte, len(c.buffer))
		copy(out, c.buffer)
		c.buffer = c.buffer[:0]
		if len(data) > 0 {
			out = append(out, data...)
		}
		return out
	}

	c.buffer = append(c.buffer, data...)

	output := make([]byte, 0, len(c.buffer))
	offset := 0
	bufLen := len(c.buffer)

	for offset < bufLen {
		if c.buffer[offset] != 0x1b {
			b := c.buffer[offset]
			if b != 0x07 {
				output = append(output, b)
			}
			offset++
			continue
		}

		if bufLen-offset < 2 {
			goto WaitMore
		}

		switch c.buffer[offset+1] {
		case '[': // CSI
			j := offset + 2
			for j < bufLen {
				b := c.buffer[j]
				if b >= 0x40 && b <= 0x7e {
					// Final byte, drop the whole sequence
					offset = j + 1
					goto NextLoop
				}
				if b < 0x20 || b > 0x3f {
					// Invalid CSI structure, keep this byte for next loop
					offset = j
					goto NextLoop
				}
				j++
			}
			if bufLen-offset > maxCSILength {
				output = append(output, c.buffer[offset:]...)
				c.buffer = c.buffer[:0]
				return output
			}
			goto WaitMore

		case ']': // OSC
			j := offset + 2
			for j < bufLen {
				if c.buffer[j] == 0x07 {
					offset = j + 1
					goto NextLoop
				}
				if c.buffer[j] == 0x1b {
					if j+1 < bufLen {
						if c.buffer[j+1] == '\\' {
							offset = j + 2
							goto NextLoop
						}
					} else {
						goto WaitMore
					}
				}
				j++
			}
			if bufLen-offset > maxOSCLength {
				output = append(output, c.buffer[offset:]...)
				c.buffer = c.buffer[:0]
				return output
			}
			goto WaitMore

		case '(', ')': // charset selection is three bytes
			if bufLen-offset < 3 {
				goto WaitMore
			}
			offset += 3
			goto NextLoop

		case 'E': // Next Line
			output = append(output, []byte("\r\n")...)
			offset += 2
			goto NextLoop

		default: // other two-byte ESC forms
			offset += 2
			goto NextLoop
		}

	NextLoop:
	}

	c.buffer = c.buffer[:0]
	return output

WaitMore:
	remaining := c.buffer[offset:]
	newBuf := make([]byte, len(remaining))
	copy(newBuf, remaining)
	c.buffer = newBuf
	return output
}

// Flush returns whatever is still buffered, unfiltered. Call once the
// stream has ended.
func (c *Cleaner) Flush() []byte {
	out := make([]byte, len(c.buffer))
	copy(out, c.buffer)
	c.buffer = c.buffer[:0]
	return out
}
