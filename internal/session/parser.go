package session

import "strings"

// A command line is one token plus at most one argument, split on the
// first space: "/join abc def" -> ("/join", "abc def").
type command struct {
	name string
	arg  string
}

// parseLine classifies an inbound text line. ok is false for plain chat
// lines, which carry no leading slash.
func parseLine(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(line, " ")
	return command{name: name, arg: strings.TrimSpace(arg)}, true
}
