// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package protocol

import (
	"strings"
)

// Assembler reconstructs one complete JSON message from a sequence of
// physical lines. The device's TCP server may split a single logical
// response across multiple lines and precede it with non-JSON banner
// text; the assembler discards everything up to the first line opening
// an object, then accumulates lines while tracking brace depth until the
// object closes.
//
// Brace counting is a deliberately cheap framing strategy: responses in
// this protocol never contain literal unescaped braces inside string
// values, so a running count of '{' minus '}' reaching zero marks a
// structurally complete object.
//
// The assembler is a pure state machine over whatever feeds it lines,
// so framing can be unit tested without sockets.
type Assembler struct {
	buf     strings.Builder
	depth   int
	started bool
}

// Feed consumes one line (without its terminator) and reports whether a
// complete message has been assembled. Lines arriving before the first
// '{' are discarded silently.
func (a *Assembler) Feed(line string) bool {
	if !a.started {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") {
			return false
		}
		a.started = true
		line = trimmed
	}

	a.buf.WriteString(line)
	a.depth += strings.Count(line, "{") - strings.Count(line, "}")

	return a.depth <= 0 && a.buf.Len() > 0
}

// Complete reports whether a full message has been assembled.
func (a *Assembler) Complete() bool {
	return a.started && a.depth <= 0 && a.buf.Len() > 0
}

// Bytes returns the accumulated message.
func (a *Assembler) Bytes() []byte {
	return []byte(a.buf.String())
}

// Reset discards all state so the assembler can frame the next message.
func (a *Assembler) Reset() {
	a.buf.Reset()
	a.depth = 0
	a.started = false
}
