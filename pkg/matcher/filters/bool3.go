package filters

// Bool3 is a tri-state boolean: unset, false or true.
type Bool3 byte

const (
	bool3Unset Bool3 = iota
	bool3False
	bool3True
)

// IsUnset reports whether no value was assigned.
func (b Bool3) IsUnset() bool { return b == bool3Unset }

// IsFalse reports whether the value is false.
func (b Bool3) IsFalse() bool { return b == bool3False }

// IsTrue reports whether the value is true.
func (b Bool3) IsTrue() bool { return b == bool3True }

// SetValue assigns v.
func (b *Bool3) SetValue(v bool) {
	if v {
		*b = bool3True

		return
	}

	*b = bool3False
}

func (b Bool3) String() string {
	switch b {
	case bool3False:
		return "false"
	case bool3True:
		return "true"
	default:
		return "unset"
	}
}
