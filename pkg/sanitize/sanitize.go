// Package sanitize turns raw interactive shell output into text safe
// for parsing and display. Escape sequences are removed by grammar
// (CSI, OSC, short ESC forms), shell noise is removed by anchored
// full-line patterns, never by blunt character stripping.
package sanitize

import (
	"regexp"
	"strings"
)

// Pattern is one named full-line noise matcher, applied after escape
// sequences are gone.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// DefaultNoise returns the stock pattern table: login banners and MOTD
// headers, echoed listing commands, and prompt lines. All patterns are
// full-line anchored so legitimate content that merely resembles noise
// (a literal $ mid-line, an email address) survives.
func DefaultNoise() []Pattern {
	return []Pattern{
		{Name: "welcome-banner", Re: regexp.MustCompile(`^Welcome to\b.*$`)},
		{Name: "last-login", Re: regexp.MustCompile(`^Last login:.*$`)},
		{Name: "ls-echo", Re: regexp.MustCompile(`^ls\s+-[1AFal]+(\s+(?:'[^']*'|/\S*))*\s*$`)},
		{Name: "prompt", Re: regexp.MustCompile(`^[\w.-]+@[\w.-]+[^#$]*[#$]\s*$`)},
	}
}

type Sanitizer struct {
	noise []Pattern
}

// New builds a Sanitizer around the given noise table. The table is
// fixed at construction, there is no shared mutable pattern state.
func New(noise []Pattern) *Sanitizer {
	return &Sanitizer{noise: noise}
}

func Default() *Sanitizer {
	return New(DefaultNoise())
}

// Clean strips escape sequences, normalizes line endings and drops
// noise lines. Idempotent: Clean(Clean(x)) == Clean(x).
func (s *Sanitizer) Clean(text string) string {
	t := StripEscapes(text)
	t = strings.ReplaceAll(t, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")
	if len(s.noise) == 0 {
		return t
	}
	lines := strings.Split(t, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if s.isNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (s *Sanitizer) isNoise(line string) bool {
	for _, p := range s.noise {
		if p.Re.MatchString(line) {
			return true
		}
	}
	return false
}

// StripEscapes removes terminal escape sequences from text: CSI
// (ESC [ params final), OSC (ESC ] ... BEL or ESC ] ... ESC \),
// charset selection (ESC ( x, ESC ) x), other two-byte ESC forms, and
// bare ESC/BEL bytes. ESC E is normalized to a newline. Malformed
// sequences terminate at the first byte outside the escape grammar so
// surrounding content is preserved.
func StripEscapes(text string) string {
	data := []byte(text)
	out := make([]byte, 0, len(data))

	for i := 0; i < len(data); {
		b := data[i]

		if b == 0x07 { // bare BEL
			i++
			continue
		}

		if b != 0x1b {
			out = append(out, b)
			i++
			continue
		}

		if i+1 >= len(data) {
			// Trailing bare ESC
			break
		}

		switch data[i+1] {
		case '[': // CSI
			j := i + 2
			for j < len(data) {
				c := data[j]
				if c >= 0x40 && c <= 0x7e {
					// Final byte, sequence ends here
					j++
					break
				}
				if c < 0x20 || c > 0x3f {
					// Outside the parameter grammar, stop stripping
					break
				}
				j++
			}
			i = j
		case ']': // OSC
			j := i + 2
			terminated := false
			for j < len(data) {
				if data[j] == 0x07 {
					j++
					terminated = true
					break
				}
				if data[j] == 0x1b && j+1 < len(data) && data[j+1] == '\\' {
					j += 2
					terminated = true
					break
				}
				j++
			}
			if !terminated {
				// Unterminated OSC swallows the remainder
				return string(out)
			}
			i = j
		case '(', ')': // charset selection is three bytes
			i += 3
		case 'E': // Next Line
			out = append(out, '\n')
			i += 2
		default: // any other two-byte ESC form
			i += 2
		}
	}

	return string(out)
}
