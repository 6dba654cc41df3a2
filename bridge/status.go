package bridge

import (
	"fmt"
	"io"
)

// clearLine returns the cursor to column 0 and erases the line.
const clearLine = "\r\x1b[K"

// Status renders the operator status line. Rolling updates overwrite the
// current line; events terminate it so the next update starts fresh.
type Status struct {
	w      io.Writer
	listen string
	line   string
	signal bool
}

// NewStatus writes status text to w. listen is shown in the connect hint.
func NewStatus(w io.Writer, listen string) *Status {
	return &Status{w: w, listen: listen}
}

// Frame reports one received chunk of n bytes.
func (s *Status) Frame(clients, packet, n int) {
	s.signal = true
	s.roll(fmt.Sprintf("video [%d tcp] packet %6d: %dK", clients, packet, n/1024))
}

// NoSignal reports a read that timed out with no data.
func (s *Status) NoSignal() {
	s.signal = false
	s.roll("video signal: OFF")
}

// Waiting reports that no device is attached.
func (s *Status) Waiting(clients int) {
	s.signal = false
	s.roll(fmt.Sprintf("Please plug in device [%d tcp] \"tcp/h264://%s\"", clients, s.listen))
}

// Joined reports a newly registered client.
func (s *Status) Joined(index int, addr string) {
	s.event(fmt.Sprintf(" client%d %s", index, addr))
}

// Hotplug reports a device arrival (+) or departure (-).
func (s *Status) Hotplug(arrived bool) {
	if arrived {
		s.event(" +hotplug")
	} else {
		s.event(" -hotplug")
	}
}

// Abandoned reports why a session was given up, e.g. "wait:io".
func (s *Status) Abandoned(tag string) {
	s.signal = false
	s.event(" " + tag)
}

// Line returns the most recent status text.
func (s *Status) Line() string {
	return s.line
}

// Signal reports whether the last rolling update was a received frame.
func (s *Status) Signal() bool {
	return s.signal
}

func (s *Status) roll(text string) {
	s.line = text
	io.WriteString(s.w, clearLine+text)
}

// event is appended to the rolling line and ends it.
func (s *Status) event(text string) {
	s.line = text
	io.WriteString(s.w, text+"\n")
}
