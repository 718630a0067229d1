package typeutil

// Export unexported functions for testing.

// FieldLen exports fieldLen for external tests.
func FieldLen(s string) (int, error) {
	return fieldLen(s)
}
