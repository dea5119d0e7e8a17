package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string that never prints its value. Connection strings
// carry passwords, so the database URL is held as a SecretString from the
// moment it is read until it is handed to the driver.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// GoString keeps %#v from leaking the value.
func (s SecretString) GoString() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value. Only the pool constructor needs it.
func (s SecretString) Unmask() string {
	return string(s)
}
