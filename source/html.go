package source

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractHTMLExport returns the conversations array of a ChatGPT chat.html
// export, found in the script assigning jsonData.
func ExtractHTMLExport(r io.Reader) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html export: %w", err)
	}

	var (
		payload json.RawMessage
		found   bool
		decErr  error
	)
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, "jsonData")
		if idx < 0 {
			return true
		}
		rest := text[idx+len("jsonData"):]
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			return true
		}
		// Decode exactly one value; the script continues with other code.
		dec := json.NewDecoder(strings.NewReader(rest[eq+1:]))
		if decErr = dec.Decode(&payload); decErr != nil {
			return true
		}
		found = true
		return false
	})

	if !found {
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoExportData, decErr)
		}
		return nil, ErrNoExportData
	}
	return payload, nil
}
