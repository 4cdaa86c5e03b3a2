// Package pages holds the server rendered HTML pages. The *_templ.go files
// are generated from the .templ sources with `templ generate`.
package pages

import "time"

func expiresLabel(expires *time.Time) string {
	if expires == nil {
		return "never"
	}
	return expires.UTC().Format(time.RFC1123)
}
