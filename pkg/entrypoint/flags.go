package entrypoint

import "strings"

// ExtractCatalog returns the value of the --catalog flag. The boolean is
// false when the flag is absent or has no value.
func ExtractCatalog(args []string) (string, bool) {
	return extractFlag(args, "catalog")
}

// ExtractConfig returns the value of the --config flag
func ExtractConfig(args []string) (string, bool) {
	return extractFlag(args, "config")
}

// ExtractState returns the value of the --state flag
func ExtractState(args []string) (string, bool) {
	return extractFlag(args, "state")
}

// extractFlag accepts both "--name value" and "--name=value"
func extractFlag(args []string, name string) (string, bool) {
	flag := "--" + name
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if arg == flag {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				return args[i+1], true
			}
			return "", false
		}
		if value, ok := strings.CutPrefix(arg, flag+"="); ok {
			if value == "" {
				return "", false
			}
			return value, true
		}
	}
	return "", false
}
