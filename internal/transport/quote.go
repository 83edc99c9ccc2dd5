package transport

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"mvdan.cc/sh/v3/syntax"
)

// tildePrefixRegex matches a leading "~" or "~user" up to the first slash.
var tildePrefixRegex = regexp.MustCompile(`^~[A-Za-z0-9._-]*(/|$)`)

// Quote renders s as a single word for the remote POSIX shell. Strings that
// need no quoting are returned unchanged.
func Quote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		return "", errors.Wrapf(err, "cannot quote %q for the remote shell", s)
	}
	return q, nil
}

// QuotePath is Quote for remote paths: a leading "~" or "~user/" is left
// bare so the remote shell still expands it, and only the rest is quoted.
func QuotePath(s string) (string, error) {
	prefix := tildePrefixRegex.FindString(s)
	if prefix == "" {
		return Quote(s)
	}
	rest := s[len(prefix):]
	if rest == "" {
		return prefix, nil
	}
	q, err := Quote(rest)
	if err != nil {
		return "", err
	}
	return prefix + q, nil
}

// Join quotes each argument with QuotePath and joins them with single
// spaces, producing a command line the remote shell splits back into
// exactly args, with home directory prefixes expanded.
func Join(args ...string) (string, error) {
	words := make([]string, 0, len(args))
	for _, arg := range args {
		q, err := QuotePath(arg)
		if err != nil {
			return "", err
		}
		words = append(words, q)
	}
	return strings.Join(words, " "), nil
}
