package chunker

import "unicode"

// splitTurn cuts text into fragments of at most budget runes whose
// concatenation is exactly text. Cuts prefer sentence boundaries, then
// whitespace, then fall back to a hard cut.
func splitTurn(text string, budget int) []string {
	var fragments []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			fragments = append(fragments, string(current))
			current = nil
		}
	}

	for _, sentence := range sentences([]rune(text)) {
		if len(current)+len(sentence) <= budget {
			current = append(current, sentence...)
			continue
		}
		flush()
		for len(sentence) > budget {
			cut := lastSpaceCut(sentence, budget)
			fragments = append(fragments, string(sentence[:cut]))
			sentence = sentence[cut:]
		}
		current = append(current, sentence...)
	}
	flush()
	return fragments
}

// sentences splits text after ". ", "? ", "! " and newlines. The boundary
// characters stay with the preceding sentence.
func sentences(text []rune) [][]rune {
	var out [][]rune
	start := 0
	for i := 0; i < len(text); i++ {
		end := -1
		switch {
		case text[i] == '\n':
			end = i + 1
		case (text[i] == '.' || text[i] == '?' || text[i] == '!') && i+1 < len(text) && text[i+1] == ' ':
			end = i + 2
		}
		if end > 0 {
			out = append(out, text[start:end])
			start = end
			i = end - 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// lastSpaceCut returns where to cut s so the first piece fits in budget runes.
// The cut lands just after the last whitespace inside the budget, or at the
// budget itself when there is none.
func lastSpaceCut(s []rune, budget int) int {
	for i := budget; i > 0; i-- {
		if unicode.IsSpace(s[i-1]) {
			return i
		}
	}
	return budget
}
