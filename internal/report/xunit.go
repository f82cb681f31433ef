package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
)

const attachmentTemplate = "[[ATTACHMENT|%s]]"

// xunitType maps result states to the xUnit "type" attribute.
var xunitType = map[State]string{
	StateSuccess: "success",
	StateError:   "error",
	StateFailure: "failure",
	StateSkipped: "skip",
}

type xmlAttrElem struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
}

type xmlState struct {
	XMLName xml.Name
	Type    string `xml:"type,attr"`
	Message string `xml:"message,attr"`
}

type xmlItem struct {
	Name  string    `xml:"name,attr"`
	Text  string    `xml:",chardata"`
	Items []xmlItem `xml:"item"`
}

type xmlMetadata struct {
	Items []xmlItem `xml:"item"`
}

type xmlTestcase struct {
	XMLName   xml.Name     `xml:"testcase"`
	Classname string       `xml:"classname,attr"`
	Name      string       `xml:"name,attr"`
	Time      string       `xml:"time,attr"`
	Timestamp string       `xml:"timestamp,attr"`
	Text      string       `xml:",chardata"`
	State     *xmlState    `xml:",omitempty"`
	Stdout    string       `xml:"system-out"`
	Metadata  *xmlMetadata `xml:"metadata,omitempty"`
}

type xmlTestsuite struct {
	XMLName   xml.Name      `xml:"testsuite"`
	Name      string        `xml:"name,attr"`
	Tests     int           `xml:"tests,attr"`
	Errors    int           `xml:"errors,attr"`
	Failures  int           `xml:"failures,attr"`
	Skip      int           `xml:"skip,attr"`
	Hostname  string        `xml:"hostname,attr"`
	ID        string        `xml:"id,attr,omitempty"`
	Package   string        `xml:"package,attr,omitempty"`
	Hardware  *xmlAttrElem  `xml:",omitempty"`
	Software  *xmlAttrElem  `xml:",omitempty"`
	Testcases []xmlTestcase `xml:"testcase"`
}

// WriteXUnit renders the report as an xUnit testsuite document.
func (r *Report) WriteXUnit(w io.Writer) error {
	summary := r.Summary()
	suite := xmlTestsuite{
		Name:     r.cfg.Name,
		Tests:    summary.Tests,
		Errors:   summary.Errors,
		Failures: summary.Failures,
		Skip:     summary.Skipped,
		Hostname: r.cfg.Hostname,
		ID:       r.cfg.ID,
		Package:  r.cfg.Package,
		Hardware: attrElem("hardware", r.cfg.Hardware),
		Software: attrElem("software", r.cfg.Software),
	}
	for _, res := range r.results {
		suite.Testcases = append(suite.Testcases, r.testcase(res))
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xunit header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return fmt.Errorf("encode xunit report: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("write xunit report: %w", err)
	}
	return nil
}

func (r *Report) testcase(res Result) xmlTestcase {
	state := res.State
	if !state.Valid() {
		r.logger.Warn("unsupported result state", "state", state, "classname", res.Classname)
		state = StateError
	}

	var text strings.Builder
	for _, name := range res.Attachments {
		fmt.Fprintf(&text, attachmentTemplate, name)
	}

	tc := xmlTestcase{
		Classname: "tracelyse." + res.Classname,
		Name:      res.Testname,
		Time:      "0",
		Timestamp: res.Timestamp.Format(time.RFC3339Nano),
		Text:      text.String(),
		Stdout:    res.Stdout,
	}
	if state != StateSuccess {
		tc.State = &xmlState{
			XMLName: xml.Name{Local: string(state)},
			Type:    xunitType[state],
			Message: res.Message,
		}
	}
	if len(res.Metadata) > 0 {
		tc.Metadata = &xmlMetadata{Items: metadataItems(res.Metadata)}
	}
	return tc
}

// metadataItems renders metadata sorted by key; nested maps become nested items.
func metadataItems(m Metadata) []xmlItem {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	items := make([]xmlItem, 0, len(keys))
	for _, k := range keys {
		item := xmlItem{Name: k}
		switch v := m[k].(type) {
		case Metadata:
			item.Items = metadataItems(v)
		case map[string]any:
			item.Items = metadataItems(Metadata(v))
		case string:
			item.Text = v
		case bool:
			item.Text = strconv.FormatBool(v)
		default:
			item.Text = fmt.Sprint(v)
		}
		items = append(items, item)
	}
	return items
}

func attrElem(name string, attrs map[string]string) *xmlAttrElem {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	el := &xmlAttrElem{XMLName: xml.Name{Local: name}}
	for _, k := range keys {
		el.Attrs = append(el.Attrs, xml.Attr{Name: xml.Name{Local: k}, Value: attrs[k]})
	}
	return el
}
