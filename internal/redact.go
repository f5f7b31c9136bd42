package internal

// ShortID returns at most the first n bytes of v for log fields.
func ShortID(v string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(v) <= n {
		return v
	}
	return v[:n]
}

// Truncate cuts v to at most n bytes.
func Truncate(v string, n int) string {
	if len(v) <= n {
		return v
	}
	return v[:n]
}
