package router

import (
	"strings"
)

// MaxFilenameLength is the longest name, in characters, SanitizeFilename returns.
const MaxFilenameLength = 100

var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeFilename replaces characters that are illegal on common
// filesystems with '_' and truncates long names. The final extension is
// kept when truncating.
func SanitizeFilename(name string) string {
	cleaned := unsafeChars.Replace(name)
	runes := []rune(cleaned)
	if len(runes) <= MaxFilenameLength {
		return cleaned
	}

	dot := strings.LastIndex(cleaned, ".")
	if dot <= 0 {
		return string(runes[:MaxFilenameLength])
	}
	ext := []rune(cleaned[dot:])
	if len(ext) >= MaxFilenameLength {
		return string(runes[:MaxFilenameLength])
	}
	base := []rune(cleaned[:dot])
	keep := MaxFilenameLength - len(ext)
	if keep > len(base) {
		keep = len(base)
	}
	return string(base[:keep]) + string(ext)
}
