package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Backend turns raw PDF bytes into text.
type Backend interface {
	Name() string
	Text(data []byte) (string, error)
}

var errEmptyText = errors.New("no text extracted")

// PlainText reads the text stream of the whole document at once.
type PlainText struct{}

func (PlainText) Name() string { return "plain" }

func (PlainText) Text(data []byte) (text string, err error) {
	defer recoverParse(&err)
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", errEmptyText
	}
	return string(b), nil
}

// RowText rebuilds each page line by line from positioned text runs. It
// keeps line breaks that the plain stream loses, which section headings
// depend on.
type RowText struct{}

func (RowText) Name() string { return "rows" }

func (RowText) Text(data []byte) (text string, err error) {
	defer recoverParse(&err)
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			// one unreadable page does not spoil the rest
			continue
		}
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			b.WriteString(strings.TrimRight(line.String(), " "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errEmptyText
	}
	return b.String(), nil
}

// recoverParse converts a panic from the PDF parser on malformed input into
// an error.
func recoverParse(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("pdf parse: %v", r)
	}
}
