package summary

// fillForward gives every empty slot the value of the nearest non-empty
// slot after it. Slots with nothing after them stay empty.
func fillForward(links []string) []string {
	out := make([]string, len(links))

	var next string

	for i := len(links) - 1; i >= 0; i-- {
		if links[i] != "" {
			next = links[i]
		}

		out[i] = next
	}

	return out
}
