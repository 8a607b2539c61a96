package decklist

import "strings"

// Normalize returns the lookup key for a card name: lowercased and trimmed.
// Punctuation and diacritics are kept, so "Lim-Dûl's Vault" only matches the
// dataset's own spelling.
func Normalize(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
