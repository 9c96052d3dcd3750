package main

import (
	"regexp"
	"strings"
)

var markupStyles = map[string]string{
	"b":       "1",
	"bold":    "1",
	"i":       "3",
	"u":       "4",
	"red":     "31",
	"green":   "32",
	"yellow":  "33",
	"blue":    "34",
	"magenta": "35",
	"cyan":    "36",
	"white":   "37",
}

var markupTag = regexp.MustCompile(`<(/?)([a-z]+)>`)

const ansiReset = "\x1b[0m"

// renderMarkup turns <b>, <red> and similar tags into ANSI escapes. A
// closing tag resets and re-applies the styles still open. Unknown tags
// are left as they are.
func renderMarkup(s string) string {
	var open []string
	var b strings.Builder
	last := 0
	for _, m := range markupTag.FindAllStringSubmatchIndex(s, -1) {
		closing := m[3] > m[2]
		name := s[m[4]:m[5]]
		code, known := markupStyles[name]
		if !known {
			continue
		}

		b.WriteString(s[last:m[0]])
		last = m[1]

		if !closing {
			open = append(open, code)
			b.WriteString("\x1b[" + code + "m")
			continue
		}
		for i := len(open) - 1; i >= 0; i-- {
			if open[i] == code {
				open = append(open[:i], open[i+1:]...)
				break
			}
		}
		b.WriteString(ansiReset)
		if len(open) > 0 {
			b.WriteString("\x1b[" + strings.Join(open, ";") + "m")
		}
	}
	b.WriteString(s[last:])
	if len(open) > 0 {
		b.WriteString(ansiReset)
	}
	return b.String()
}
