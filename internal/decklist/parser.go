// Package decklist parses and exports plain-text decklists of "<quantity> <card name>" lines.
package decklist

import (
	"regexp"
	"strconv"
	"strings"

	"cardbored-api/internal/model"
)

// The separator also accepts Unicode spaces such as NBSP, common in lists copied from web pages.
var linePattern = regexp.MustCompile(`^(\d+)[\s\p{Zs}]+(.+)$`)

// Result is the outcome of parsing one decklist.
type Result struct {
	Cards []model.CardRequest
	// Skipped counts non-blank, non-comment lines that did not match "<digits> <name>".
	// They are dropped without error.
	Skipped int
}

// Parse returns the card requests of text in input order.
func Parse(text string) []model.CardRequest {
	return ParseWithStats(text).Cards
}

// ParseWithStats parses text and also reports how many lines were dropped.
func ParseWithStats(text string) Result {
	var res Result
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isComment(line) {
			continue
		}

		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			res.Skipped++
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil {
			// digits too long for an int
			res.Skipped++
			continue
		}
		name := strings.TrimSpace(m[2])
		if name == "" {
			res.Skipped++
			continue
		}

		res.Cards = append(res.Cards, model.CardRequest{
			Name:     name,
			Quantity: qty,
			Line:     i + 1,
		})
	}
	return res
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#")
}
