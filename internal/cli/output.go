package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// printResult writes data as indented JSON, or text when the format is
// text.
func printResult(w io.Writer, format string, data any, text string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
