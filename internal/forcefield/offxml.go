package forcefield

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrNoHandler indicates a request for a parameter type the force
	// field does not define.
	ErrNoHandler = errors.New("forcefield: no such parameter handler")

	// ErrBadAttribute indicates a parameter attribute that could not be
	// parsed as a quantity.
	ErrBadAttribute = errors.New("forcefield: bad parameter attribute")
)

// Parameter is one rule in a handler's parameter list. Numeric
// attributes (k, length, angle, k1..kN, ...) are kept as raw
// "value * unit" strings in Extra and accessed through FloatAttr.
type Parameter struct {
	XMLName xml.Name
	ID      string     `xml:"id,attr,omitempty"`
	SMIRKS  string     `xml:"smirks,attr"`
	Extra   []xml.Attr `xml:",any,attr"`
}

// Attr returns the raw value of a named attribute.
func (p *Parameter) Attr(name string) (string, bool) {
	for _, a := range p.Extra {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr replaces or appends a raw attribute value.
func (p *Parameter) SetAttr(name, value string) {
	for i, a := range p.Extra {
		if a.Name.Local == name {
			p.Extra[i].Value = value
			return
		}
	}
	p.Extra = append(p.Extra, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

// FloatAttr parses the numeric part of a "value * unit" attribute.
func (p *Parameter) FloatAttr(name string) (float64, error) {
	raw, ok := p.Attr(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q has no attribute %q", ErrBadAttribute, p.ID, name)
	}
	num := raw
	if i := strings.Index(raw, "*"); i >= 0 {
		num = raw[:i]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q attribute %q = %q", ErrBadAttribute, p.ID, name, raw)
	}
	return v, nil
}

// SetQuantity writes a "value * unit" attribute.
func (p *Parameter) SetQuantity(name string, value float64, unit string) {
	p.SetAttr(name, fmt.Sprintf("%.10g * %s", value, unit))
}

// KCount reports how many k1..kN periodicity terms the parameter
// carries. Zero for parameters without numbered force constants.
func (p *Parameter) KCount() int {
	n := 0
	for {
		if _, ok := p.Attr(fmt.Sprintf("k%d", n+1)); !ok {
			return n
		}
		n++
	}
}

// Handler is one parameter list of the force field.
type Handler struct {
	Version    string     `xml:"version,attr,omitempty"`
	Extra      []xml.Attr `xml:",any,attr"`
	Parameters []*Parameter `xml:",any"`
}

// ParameterByID resolves a parameter identifier. The second return value
// is false when no rule carries the identifier; stale identifiers are
// expected when schemas drift between runs and are not an error.
func (h *Handler) ParameterByID(id string) (*Parameter, bool) {
	for _, p := range h.Parameters {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// ParameterBySMIRKS resolves a parameter by its structural pattern.
func (h *Handler) ParameterBySMIRKS(smirks string) (*Parameter, bool) {
	for _, p := range h.Parameters {
		if p.SMIRKS == smirks {
			return p, true
		}
	}
	return nil, false
}

// ForceField is a SMIRNOFF-style parameter document.
type ForceField struct {
	XMLName     xml.Name `xml:"SMIRNOFF"`
	Version     string   `xml:"version,attr,omitempty"`
	Aromaticity string   `xml:"aromaticity_model,attr,omitempty"`

	Bonds            *Handler `xml:"Bonds,omitempty"`
	Angles           *Handler `xml:"Angles,omitempty"`
	ProperTorsions   *Handler `xml:"ProperTorsions,omitempty"`
	ImproperTorsions *Handler `xml:"ImproperTorsions,omitempty"`
	Constraints      *Handler `xml:"Constraints,omitempty"`
}

// Parse reads an OFFXML document.
func Parse(r io.Reader) (*ForceField, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("forcefield: reading OFFXML: %w", err)
	}
	var ff ForceField
	if err := xml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("forcefield: parsing OFFXML: %w", err)
	}
	return &ff, nil
}

// ParseFile reads an OFFXML document from disk.
func ParseFile(path string) (*ForceField, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("forcefield: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Handler returns the parameter list for a type name.
func (ff *ForceField) Handler(name string) (*Handler, error) {
	var h *Handler
	switch name {
	case TypeBonds:
		h = ff.Bonds
	case TypeAngles:
		h = ff.Angles
	case TypeProperTorsions:
		h = ff.ProperTorsions
	case TypeImproperTorsions:
		h = ff.ImproperTorsions
	case "Constraints":
		h = ff.Constraints
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, name)
	}
	return h, nil
}

// DeregisterConstraints drops the constraint handler, reporting whether
// one was present. Fits are run unconstrained.
func (ff *ForceField) DeregisterConstraints() bool {
	had := ff.Constraints != nil
	ff.Constraints = nil
	return had
}

// Write serializes the force field as indented OFFXML.
func (ff *ForceField) Write(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("forcefield: writing OFFXML: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(ff); err != nil {
		return fmt.Errorf("forcefield: encoding OFFXML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("forcefield: encoding OFFXML: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ToFile writes the force field to disk.
func (ff *ForceField) ToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("forcefield: create %s: %w", path, err)
	}
	if err := ff.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
