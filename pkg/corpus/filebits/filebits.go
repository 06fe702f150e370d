// Package filebits defines the per-file flag bitset stored in corpus metadata.
package filebits

import "strings"

// Set is a bitset of file properties computed when the corpus is built.
type Set int

// File flags. The bit order is part of the corpus.json format.
const (
	IsTest Set = 1 << iota
	IsAutogen
	IsMain
	ImportsC
	ImportsUnsafe
	ImportsReflect
)

var names = [...]struct {
	bit  Set
	name string
}{
	{IsTest, "test"},
	{IsAutogen, "autogen"},
	{IsMain, "main"},
	{ImportsC, "cgo"},
	{ImportsUnsafe, "unsafe"},
	{ImportsReflect, "reflect"},
}

// Has reports whether any of the bits in mask are set.
func (s Set) Has(mask Set) bool {
	return s&mask != 0
}

// String renders the set bits as a "|"-separated list.
func (s Set) String() string {
	if s == 0 {
		return "none"
	}

	parts := make([]string, 0, len(names))

	for _, n := range names {
		if s.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}

	return strings.Join(parts, "|")
}
