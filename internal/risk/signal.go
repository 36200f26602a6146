package risk

// Signal is the outcome of one sub-computation: a value, or a neutral
// fallback with the reason it could not be computed.
type Signal struct {
	value   float64
	reason  string
	neutral bool
}

// Ok wraps a computed value.
func Ok(v float64) Signal {
	return Signal{value: v}
}

// Neutral marks a sub-computation that fell back to zero.
func Neutral(reason string) Signal {
	return Signal{reason: reason, neutral: true}
}

// Value is the signal's contribution; neutral signals contribute zero.
func (s Signal) Value() float64 {
	if s.neutral {
		return 0
	}
	return s.value
}

// IsNeutral reports whether the signal fell back.
func (s Signal) IsNeutral() bool { return s.neutral }

// Reason explains a neutral signal.
func (s Signal) Reason() string { return s.reason }
