package cli

import (
	"encoding/json"
	"io"
)

// emit writes v as indented JSON in json format and calls text otherwise.
func emit(opts *RootOptions, w io.Writer, v any, text func(io.Writer) error) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
