package cli

import "strings"

// ReorderArgs moves flags that appear after positional arguments to the front, since
// the flag package stops at the first non-flag. "pachat ask PA1 a.pdf --output json"
// then parses --output.
func ReorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// JoinArgs joins positional arguments so a message works with or without shell quoting.
func JoinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
