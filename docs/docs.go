// Package docs serves the tablekit usage guide.
package docs

import _ "embed"

//go:embed docs.md
var text string

// Get returns the usage guide as markdown.
func Get() string {
	return text
}
