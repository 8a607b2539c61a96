package decklist

import (
	"strconv"
	"strings"

	"cardbored-api/internal/model"
)

// Export renders cards as a decklist that Parse reads back.
// A non-empty title becomes a leading comment line.
func Export(cards []model.ResolvedCard, title string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("// ")
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	for i, c := range cards {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(c.Quantity))
		b.WriteByte(' ')
		b.WriteString(c.Name)
	}
	return b.String()
}
