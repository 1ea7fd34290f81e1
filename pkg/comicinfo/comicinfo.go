// Package comicinfo reads and writes the ComicInfo.xml metadata sidecar
// embedded in CBZ archives. The document is modeled as an ordered list of
// field elements so that serializing preserves the original field order and
// any fields this tool doesn't know about.
package comicinfo

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const rootElement = "ComicInfo"

// ErrMalformed indicates the metadata document couldn't be parsed as XML.
var ErrMalformed = errors.New("malformed metadata document")

// Well-known field names.
const (
	FieldSeries = "Series"
	FieldVolume = "Volume"
	FieldNumber = "Number"
	FieldTitle  = "Title"
)

type field struct {
	name  string
	value string
}

// Document is an in-memory ComicInfo record. The zero value is not usable;
// use New or Parse.
type Document struct {
	root   string
	fields []field
}

// New returns an empty document with a ComicInfo root.
func New() *Document {
	return &Document{root: rootElement}
}

// Parse builds a document from raw XML bytes. The root element's direct
// children become fields in document order. Returns ErrMalformed on
// unparseable input.
func Parse(data []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *xml.StartElement
	for root == nil {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%v", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			root = &se
		}
	}

	doc := &Document{root: root.Name.Local}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := dec.DecodeElement(&value, &t); err != nil {
				return nil, errors.Wrapf(ErrMalformed, "%v", err)
			}
			doc.fields = append(doc.fields, field{name: t.Name.Local, value: value})
		case xml.EndElement:
			// End of the root element.
			return doc, nil
		}
	}
}

// Get returns the value of the named field and whether it exists.
func (d *Document) Get(name string) (string, bool) {
	for _, f := range d.fields {
		if f.name == name {
			return f.value, true
		}
	}
	return "", false
}

// Set creates or updates the named field. New fields are appended, so
// document order stays stable across edits.
func (d *Document) Set(name, value string) {
	for i, f := range d.fields {
		if f.name == name {
			d.fields[i].value = value
			return
		}
	}
	d.fields = append(d.fields, field{name: name, value: value})
}

// Remove deletes the named field if present.
func (d *Document) Remove(name string) {
	for i, f := range d.fields {
		if f.name == name {
			d.fields = append(d.fields[:i], d.fields[i+1:]...)
			return
		}
	}
}

// Series returns the series name, or "" if absent.
func (d *Document) Series() string {
	v, _ := d.Get(FieldSeries)
	return strings.TrimSpace(v)
}

func (d *Document) SetSeries(series string) {
	d.Set(FieldSeries, series)
}

// Volume returns the volume number, or nil if the field is absent, empty, or
// not numeric.
func (d *Document) Volume() *int {
	v, ok := d.Get(FieldVolume)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &n
}

func (d *Document) SetVolume(volume int) {
	d.Set(FieldVolume, strconv.Itoa(volume))
}

// Number returns the chapter/issue number, or nil if absent or not numeric.
func (d *Document) Number() *float64 {
	v, ok := d.Get(FieldNumber)
	if !ok {
		return nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &n
}

func (d *Document) SetNumber(number float64) {
	d.Set(FieldNumber, strconv.FormatFloat(number, 'f', -1, 64))
}

// Title returns the chapter title, or "" if absent.
func (d *Document) Title() string {
	v, _ := d.Get(FieldTitle)
	return v
}

func (d *Document) SetTitle(title string) {
	d.Set(FieldTitle, title)
}

// Serialize emits the document as a UTF-8 XML file with a declaration.
// Children appear in document order.
func (d *Document) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	start := xml.StartElement{Name: xml.Name{Local: d.root}}
	if err := enc.EncodeToken(start); err != nil {
		return nil, errors.WithStack(err)
	}
	for _, f := range d.fields {
		el := xml.StartElement{Name: xml.Name{Local: f.name}}
		if err := enc.EncodeToken(el); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := enc.EncodeToken(xml.CharData(f.value)); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := enc.EncodeToken(xml.EndElement{Name: el.Name}); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	if err := enc.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := enc.Flush(); err != nil {
		return nil, errors.WithStack(err)
	}

	buf.WriteString("\n")
	return buf.Bytes(), nil
}
