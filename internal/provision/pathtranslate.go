package provision

import "regexp"

// driveLetterRegex matches a Windows drive prefix such as "C:".
var driveLetterRegex = regexp.MustCompile(`^([A-Za-z]):`)

// TranslatePath rewrites a drive-letter path ("C:/kitchen") into the
// Cygwin mount form ("/cygdrive/C/kitchen") that rsync expects on a
// Windows-like target. The letter keeps its case. Any other path, or any
// path on a POSIX target, is returned unchanged.
func TranslatePath(path string, windowsLike bool) string {
	if !windowsLike {
		return path
	}
	return driveLetterRegex.ReplaceAllString(path, "/cygdrive/$1")
}
