package fmi

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Namespaces emitted by the FMI WFS timevaluepair stored queries. Element names
// are matched on these URIs, so a mismatch silently yields no observations.
const (
	nsWFS   = "http://www.opengis.net/wfs/2.0"
	nsOM    = "http://www.opengis.net/om/2.0"
	nsOMSO  = "http://inspire.ec.europa.eu/schemas/omso/3.0"
	nsWML2  = "http://www.opengis.net/waterml/2.0"
	nsGML   = "http://www.opengis.net/gml/3.2"
	nsXLink = "http://www.w3.org/1999/xlink"
)

var (
	namePointObservation = xml.Name{Space: nsOMSO, Local: "PointTimeSeriesObservation"}
	nameObservedProperty = xml.Name{Space: nsOM, Local: "observedProperty"}
	nameTimeseries       = xml.Name{Space: nsWML2, Local: "MeasurementTimeseries"}
	namePoint            = xml.Name{Space: nsWML2, Local: "point"}
	nameTVP              = xml.Name{Space: nsWML2, Local: "MeasurementTVP"}
	nameValue            = xml.Name{Space: nsWML2, Local: "value"}
	nameTime             = xml.Name{Space: nsWML2, Local: "time"}
	nameHref             = xml.Name{Space: nsXLink, Local: "href"}
)

// ErrMalformedFeed is returned when the upstream document is not well-formed XML.
var ErrMalformedFeed = errors.New("malformed feed")

// Point is the latest valid reading of one parameter. Time is the feed's
// timestamp text verbatim, or empty if the point carried none.
type Point struct {
	Value float64
	Time  string
}

// element is a generic XML tree node. Names carry resolved namespace URIs.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []element  `xml:",any"`
}

func (e *element) attr(name xml.Name) string {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

func (e *element) child(name xml.Name) *element {
	for i := range e.Children {
		if e.Children[i].XMLName == name {
			return &e.Children[i]
		}
	}
	return nil
}

func (e *element) children(name xml.Name) []*element {
	var out []*element
	for i := range e.Children {
		if e.Children[i].XMLName == name {
			out = append(out, &e.Children[i])
		}
	}
	return out
}

// descendants returns every element below e with the given name, in document order.
func (e *element) descendants(name xml.Name) []*element {
	var out []*element
	var walk func(*element)
	walk = func(n *element) {
		for i := range n.Children {
			c := &n.Children[i]
			if c.XMLName == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

func (e *element) descendant(name xml.Name) *element {
	if found := e.descendants(name); len(found) > 0 {
		return found[0]
	}
	return nil
}

// ParseFeed extracts the most recent valid reading for every parameter in an
// FMI timevaluepair feed. Parameters whose points are all missing or NaN are
// absent from the result.
func ParseFeed(data []byte) (map[string]Point, error) {
	root, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	results := make(map[string]Point)
	for _, obs := range root.descendants(namePointObservation) {
		prop := obs.descendant(nameObservedProperty)
		if prop == nil {
			continue
		}
		name := ParamName(prop.attr(nameHref))
		if name == "" {
			continue
		}

		var tvps []*element
		for _, series := range obs.descendants(nameTimeseries) {
			for _, p := range series.children(namePoint) {
				tvps = append(tvps, p.children(nameTVP)...)
			}
		}

		// Walk backwards; the newest slot is often NaN while a sensor recovers.
		for i := len(tvps) - 1; i >= 0; i-- {
			if pt, ok := readPoint(tvps[i]); ok {
				results[name] = pt
				break
			}
		}
	}

	return results, nil
}

// decodeDocument decodes the root element and requires that nothing but
// whitespace, comments or processing instructions follows it.
func decodeDocument(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root element
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return &root, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return nil, fmt.Errorf("junk after document element: <%s>", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, errors.New("junk after document element")
			}
		}
	}
}

func readPoint(tvp *element) (Point, bool) {
	v := tvp.child(nameValue)
	if v == nil {
		return Point{}, false
	}
	text := strings.TrimSpace(v.Text)
	if text == "" || text == "NaN" {
		return Point{}, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Point{}, false
	}

	pt := Point{Value: f}
	if t := tvp.child(nameTime); t != nil {
		pt.Time = strings.TrimSpace(t.Text)
	}
	return pt, true
}
