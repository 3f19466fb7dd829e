package schedstore

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// plistDict is an ordered string-keyed dictionary holding the subset of
// plist value types this store uses: string, integer, array-of-string and
// nested dict.
type plistDict struct {
	keys []string
	vals map[string]any
}

func (d *plistDict) set(key string, v any) {
	if d.vals == nil {
		d.vals = make(map[string]any)
	}
	if _, exists := d.vals[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = v
}

func (d plistDict) str(key string) (string, bool) {
	v, ok := d.vals[key].(string)
	return v, ok
}

func (d plistDict) integer(key string) (int, bool) {
	v, ok := d.vals[key].(int)
	return v, ok
}

func (d plistDict) dict(key string) (plistDict, bool) {
	v, ok := d.vals[key].(plistDict)
	return v, ok
}

const plistHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
`

func marshalPlist(d plistDict) []byte {
	var b bytes.Buffer
	b.WriteString(plistHeader)
	writeDict(&b, d, 0)
	b.WriteString("</plist>\n")
	return b.Bytes()
}

func writeDict(b *bytes.Buffer, d plistDict, depth int) {
	indent := strings.Repeat("\t", depth)
	b.WriteString(indent + "<dict>\n")
	inner := indent + "\t"
	for _, key := range d.keys {
		fmt.Fprintf(b, "%s<key>%s</key>\n", inner, escapeXML(key))
		switch v := d.vals[key].(type) {
		case string:
			fmt.Fprintf(b, "%s<string>%s</string>\n", inner, escapeXML(v))
		case int:
			fmt.Fprintf(b, "%s<integer>%d</integer>\n", inner, v)
		case []string:
			b.WriteString(inner + "<array>\n")
			for _, item := range v {
				fmt.Fprintf(b, "%s\t<string>%s</string>\n", inner, escapeXML(item))
			}
			b.WriteString(inner + "</array>\n")
		case plistDict:
			writeDict(b, v, depth+1)
		}
	}
	b.WriteString(indent + "</dict>\n")
}

func escapeXML(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func unmarshalPlist(data []byte) (plistDict, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return plistDict{}, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "plist" {
			continue
		}
		if start.Name.Local == "dict" {
			return parseDict(dec)
		}
		return plistDict{}, fmt.Errorf("unexpected element <%s>", start.Name.Local)
	}
}

func parseDict(dec *xml.Decoder) (plistDict, error) {
	var d plistDict
	var key string
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return d, fmt.Errorf("unterminated dict")
			}
			return d, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "key":
				key, err = readText(dec)
				if err != nil {
					return d, err
				}
			case "string":
				v, err := readText(dec)
				if err != nil {
					return d, err
				}
				d.set(key, v)
			case "integer":
				text, err := readText(dec)
				if err != nil {
					return d, err
				}
				n, err := strconv.Atoi(strings.TrimSpace(text))
				if err != nil {
					return d, err
				}
				d.set(key, n)
			case "array":
				arr, err := parseArray(dec)
				if err != nil {
					return d, err
				}
				d.set(key, arr)
			case "dict":
				nested, err := parseDict(dec)
				if err != nil {
					return d, err
				}
				d.set(key, nested)
			default:
				if err := dec.Skip(); err != nil {
					return d, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "dict" {
				return d, nil
			}
		}
	}
}

func parseArray(dec *xml.Decoder) ([]string, error) {
	var arr []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "string" {
				v, err := readText(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			} else if err := dec.Skip(); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return arr, nil
			}
		}
	}
}

// readText consumes character data up to the element's end tag
func readText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			return b.String(), nil
		}
	}
}
