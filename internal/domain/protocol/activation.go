package protocol

import (
	"strconv"
	"strings"
)

// DecodeActivation decodes the plugin-activated file.
func DecodeActivation(text string) (bool, error) {
	switch strings.TrimSpace(text) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, ErrIncomplete
	}
}

// EncodeActivation renders the plugin-activated file.
func EncodeActivation(active bool) string {
	return strconv.FormatBool(active) + "\n"
}

// DecodeVolume decodes the volume file, clamping to 0-100.
func DecodeVolume(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, ErrIncomplete
	}
	return clampVolume(n), nil
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
