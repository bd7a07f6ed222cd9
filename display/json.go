// Package display holds output helpers shared by zapd CLI commands.
package display

import "encoding/json"

// MarshalJSON marshals with pretty formatting for terminal output.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
