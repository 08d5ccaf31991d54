package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// docxText returns the text of every paragraph in document order, one
// paragraph per line.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}
	body, err := readZipFile(zr.File, docxBody)
	if err != nil {
		return "", err
	}
	paras, err := docxParagraphs(body)
	if err != nil {
		return "", err
	}
	return strings.Join(paras, "\n"), nil
}

func readZipFile(files []*zip.File, target string) ([]byte, error) {
	for _, f := range files {
		if f == nil || !strings.EqualFold(f.Name, target) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", target, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in container", target)
}

// docxParagraphs walks w:p elements, collecting w:t runs. Tabs and explicit
// breaks inside a paragraph are kept as whitespace. Textboxes and
// compatibility fallbacks are skipped, so only runs of the outermost open
// paragraph count.
func docxParagraphs(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		depth  int
		inText bool
		text   strings.Builder
		out    []string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxBody, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "txbxContent", "Fallback":
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("parse %s: %w", docxBody, err)
				}
			case "p":
				if depth == 0 {
					text.Reset()
				}
				depth++
			case "t":
				inText = depth > 0
			case "tab":
				if depth > 0 {
					text.WriteByte('\t')
				}
			case "br", "cr":
				if depth > 0 {
					text.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if depth == 0 {
					continue
				}
				depth--
				if depth == 0 {
					out = append(out, text.String())
					text.Reset()
					inText = false
				}
			}
		}
	}
	return out, nil
}
