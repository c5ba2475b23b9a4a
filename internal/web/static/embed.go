package static

import (
	_ "embed"
)

//go:embed index.html
var indexHTML []byte

// IndexHTML returns the embedded status page.
func IndexHTML() []byte {
	return indexHTML
}
