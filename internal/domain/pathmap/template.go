package pathmap

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownVariable is returned when a template names a variable other than
// home_dir, username or wine_prefix.
var ErrUnknownVariable = errors.New("unknown template variable")

// Vars are the values substituted into rule templates.
type Vars struct {
	HomeDir    string
	Username   string
	WinePrefix string
}

func (v Vars) lookup(name string) (string, bool) {
	switch name {
	case "home_dir":
		return v.HomeDir, true
	case "username":
		return v.Username, true
	case "wine_prefix":
		return v.WinePrefix, true
	default:
		return "", false
	}
}

// Expand substitutes {home_dir}, {username} and {wine_prefix} in template.
// A brace with no closing brace is kept literally.
func Expand(template string, v Vars) (string, error) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		name := rest[open+1 : open+end]
		value, ok := v.lookup(name)
		if !ok {
			return "", fmt.Errorf("%w %q in %q", ErrUnknownVariable, name, template)
		}
		b.WriteString(rest[:open])
		b.WriteString(value)
		rest = rest[open+end+1:]
	}
}
