package env

import "os"

// Get reads an environment variable, falling back when it is unset or empty.
// Used for the few knobs read outside the envconfig-managed Config, like the
// log format toggle that has to apply before config parsing happens.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
