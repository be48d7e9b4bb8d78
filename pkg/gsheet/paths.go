package gsheet

import "strings"

// TruncatePath cuts a path template after the component containing key.
// An empty key, or one the template does not contain, keeps the whole
// template.
func TruncatePath(tmpl, key string) string {
	if key == "" {
		return tmpl
	}

	idx := strings.Index(tmpl, key)
	if idx < 0 {
		return tmpl
	}

	if end := strings.IndexByte(tmpl[idx:], '/'); end >= 0 {
		return tmpl[:idx+end]
	}

	return tmpl
}

// splitPath returns the non-empty components of a slash separated path.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]

	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// splitDir separates the folder part of a path from its final name.
func splitDir(path string) (string, string) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "", ""
	}

	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
}

// escapeQuery quotes a value for a Drive query string literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
