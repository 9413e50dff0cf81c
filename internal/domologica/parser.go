package domologica

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/daemonp/domologica2mqtt/internal/types"
	"github.com/daemonp/domologica2mqtt/internal/util"
)

type statusDocument struct {
	Elements []elementStatusRecord `xml:"ElementStatus"`
}

type elementStatusRecord struct {
	Path     string         `xml:"ElementPath"`
	Statuses []statusRecord `xml:"Status"`
}

type statusRecord struct {
	ID    string  `xml:"id,attr"`
	Value *string `xml:"value"`
}

type metadataDocument struct {
	Name     string       `xml:"name"`
	ClassID  string       `xml:"classId"`
	Actions  []namedEntry `xml:"actions>action"`
	Statuses []namedEntry `xml:"statuses>status"`
}

// namedEntry accepts both <action id="switchon"/> and <action>switchon</action>.
type namedEntry struct {
	ID   string `xml:"id,attr"`
	Text string `xml:",chardata"`
}

func (n namedEntry) name() string {
	if s := strings.TrimSpace(n.ID); s != "" {
		return s
	}
	return strings.TrimSpace(n.Text)
}

// ParseStatuses normalizes the status document. Records without an element
// path and statuses without an id are skipped. A status without a <value>
// child becomes the flag sentinel. Keys are lowercased, and when a key
// repeats within one element the last record wins.
func ParseStatuses(raw []byte) (types.WorldSnapshot, error) {
	var doc statusDocument
	if err := unmarshal(raw, &doc); err != nil {
		return nil, &MalformedDocumentError{Document: "status", Err: err}
	}

	world := make(types.WorldSnapshot, len(doc.Elements))
	for _, rec := range doc.Elements {
		id := types.ElementID(strings.TrimSpace(rec.Path))
		if id == "" {
			continue
		}

		element := make(types.ElementSnapshot, len(rec.Statuses))
		for _, st := range rec.Statuses {
			key := types.NormalizeKey(st.ID)
			if key == "" {
				continue
			}
			if st.Value == nil {
				element[key] = types.Flag()
			} else {
				element[key] = types.Text(strings.TrimSpace(*st.Value))
			}
		}
		world[id] = element
	}
	return world, nil
}

func ParseMetadata(id types.ElementID, raw []byte) (types.ElementMetadata, error) {
	var doc metadataDocument
	if err := unmarshal(raw, &doc); err != nil {
		return types.ElementMetadata{}, &MalformedDocumentError{Document: fmt.Sprintf("metadata %s", id), Err: err}
	}

	meta := types.ElementMetadata{
		ID:      id,
		Name:    util.Normalize(doc.Name),
		ClassID: strings.TrimSpace(doc.ClassID),
	}
	for _, a := range doc.Actions {
		if name := a.name(); name != "" {
			meta.Actions = append(meta.Actions, name)
		}
	}
	for _, s := range doc.Statuses {
		if name := s.name(); name != "" {
			meta.Statuses = append(meta.Statuses, string(types.NormalizeKey(name)))
		}
	}
	return meta, nil
}

// ParameterName derives a label from the "parameter" status, which some
// elements fill with "<label>:<details>".
func ParameterName(e types.ElementSnapshot) string {
	v, ok := e.Value(StatusParameter)
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(v, ":")
	return strings.TrimSpace(name)
}

func unmarshal(raw []byte, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("empty document")
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader
	return dec.Decode(v)
}

// charsetReader handles gateways declaring a non UTF-8 encoding such as
// ISO-8859-1 in the XML prolog.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
