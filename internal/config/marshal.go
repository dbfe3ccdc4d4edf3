package config

import "encoding/json"

// MarshalJSON masks sensitive fields when the configuration is serialized
// (e.g. for debug dumps). Add new secret fields here as they appear.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "********"
	}
	return json.Marshal(masked)
}
