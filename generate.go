// Package roxhomepage is the Rox marketing and documentation site.
//
// Regenerate the syntax highlighting stylesheet using:
//
//	go generate
package roxhomepage

//go:generate go run ./tools/generate-chroma-css -o static/css/chroma.css
