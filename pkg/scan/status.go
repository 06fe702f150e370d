package scan

import (
	"path"
	"unicode/utf8"
)

// Status texts published while a run progresses.
const (
	StatusReady = "ready"

	loadingFormat = "loading %s repository..."
	processingFmt = "processing %s"
	errorFormat   = "ERROR %s"
)

const (
	maxStatusName   = 58
	longBaseLen     = 28
	longBasePrefix  = 32
	shortBasePrefix = 48
	elision         = "{...}/"
)

// ShortenName abbreviates long file names for status lines. Names longer than
// 58 bytes keep a leading prefix and the base name, e.g.
// "kubernetes/pkg/controller/very/long{...}/replica_set.go".
func ShortenName(name string) string {
	if len(name) <= maxStatusName {
		return name
	}

	base := path.Base(name)

	prefixLen := shortBasePrefix
	if len(base) >= longBaseLen {
		prefixLen = longBasePrefix
	}

	// Never cut a multibyte rune in half.
	for prefixLen > 0 && !utf8.RuneStart(name[prefixLen]) {
		prefixLen--
	}

	return name[:prefixLen] + elision + base
}
