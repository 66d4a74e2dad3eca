package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"tinygo.org/x/tinyfont"

	"g8rtos/kernel"
)

var (
	colorPanicBackground = color.RGBA{R: 0x80, A: 0xFF}
	colorPanicText       = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

// onPanic runs once when the kernel halts on a fatal error or a thread
// panic. It logs the report and paints it over the screen.
func (s *System) onPanic(info kernel.PanicInfo) {
	lines := panicLines(info)

	s.log.Error().
		Stringer("thread", info.ThreadID).
		Interface("value", info.Value).
		Msg("kernel panic")
	if l := s.h.Logger(); l != nil {
		for _, line := range lines {
			l.WriteLineString(line)
		}
	}

	d := s.disp
	if d == nil {
		return
	}
	d.Clear(colorPanicBackground)

	_, cw := tinyfont.LineWidth(font, "0")
	w, h := d.Size()
	cols := int16(1)
	if cw > 0 {
		cols = max(w/int16(cw), 1)
	}

	y := int16(0)
draw:
	for _, line := range lines {
		for len(line) > 0 {
			if y+fontHeight > h {
				break draw
			}
			chunk, rest := takeRunes(line, cols)
			d.text(0, y, chunk, colorPanicText)
			y += fontHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	if err := d.Display(); err != nil {
		s.log.Debug().Err(err).Msg("present panic screen")
	}
}

func panicLines(info kernel.PanicInfo) []string {
	lines := []string{
		"G8RTOS panic",
		fmt.Sprintf("thread: %s", info.ThreadID),
		fmt.Sprintf("panic: %v", info.Value),
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line != "" {
			lines = append(lines, strings.ReplaceAll(line, "\t", "  "))
		}
	}
	return lines
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}
