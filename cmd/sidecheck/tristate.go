package main

import (
	"fmt"
	"os"
	"strings"
)

// tristate is the value of the auto|on|off flags (--color, --ui).
type tristate uint8

const (
	tristateAuto tristate = iota
	tristateOn
	tristateOff
)

func parseTristate(flag, value string) (tristate, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return tristateAuto, nil
	case "on":
		return tristateOn, nil
	case "off":
		return tristateOff, nil
	}
	return tristateAuto, fmt.Errorf("invalid --%s value %q (expected auto|on|off)", flag, value)
}

// enabled resolves auto by asking whether f is a terminal.
func (t tristate) enabled(f *os.File) bool {
	switch t {
	case tristateOn:
		return true
	case tristateOff:
		return false
	}
	return isTerminal(f)
}
