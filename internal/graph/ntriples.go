package graph

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/knakk/rdf"
)

const (
	rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	xsdNS   = "http://www.w3.org/2001/XMLSchema#"
)

// Triple is one statement. S and P are local ids; O is typed.
type Triple struct {
	S string
	P string
	O Value
}

var datatypes = map[Datatype]string{
	TypeString:  xsdNS + "string",
	TypeInteger: xsdNS + "integer",
	TypeDecimal: xsdNS + "decimal",
	TypeBoolean: xsdNS + "boolean",
}

// EncodeNTriples writes triples in N-Triples form, one statement per line.
func EncodeNTriples(w io.Writer, triples []Triple) error {
	enc := rdf.NewTripleEncoder(w, rdf.NTriples)
	for _, t := range triples {
		rt, err := toRDF(t)
		if err != nil {
			return fmt.Errorf("ntriples: %s %s: %w", t.S, t.P, err)
		}
		if err := enc.Encode(rt); err != nil {
			return err
		}
	}
	return enc.Close()
}

func toRDF(t Triple) (rdf.Triple, error) {
	subj, err := node(t.S)
	if err != nil {
		return rdf.Triple{}, err
	}
	p := rdfType
	if t.P != TypePredicate {
		p = expandIRI(t.P)
	}
	pred, err := rdf.NewIRI(p)
	if err != nil {
		return rdf.Triple{}, err
	}
	obj, err := object(t.O)
	if err != nil {
		return rdf.Triple{}, err
	}
	return rdf.Triple{Subj: subj, Pred: pred, Obj: obj}, nil
}

// node maps a local id, an absolute IRI or a "_:" label onto a term usable
// as subject or object.
func node(id string) (rdf.Subject, error) {
	if label, ok := strings.CutPrefix(id, "_:"); ok {
		return rdf.NewBlank(label)
	}
	return rdf.NewIRI(expandIRI(id))
}

func object(v Value) (rdf.Object, error) {
	if v.Type == TypeRef {
		n, err := node(v.Lexical)
		if err != nil {
			return nil, err
		}
		return n.(rdf.Object), nil
	}
	dt, ok := datatypes[v.Type]
	if !ok {
		dt = datatypes[TypeString]
	}
	iri, err := rdf.NewIRI(dt)
	if err != nil {
		return nil, err
	}
	return rdf.NewTypedLiteral(v.Lexical, iri), nil
}

func expandIRI(id string) string {
	if strings.Contains(id, "://") {
		return escapeIRI(id, false)
	}
	return Namespace + escapeIRI(id, true)
}

// escapeIRI percent-encodes the bytes an IRI may not hold. Local ids also
// escape '%' so localID can restore them exactly.
func escapeIRI(s string, local bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x20 || strings.IndexByte(`<>"{}|^`+"`"+`\`, c) >= 0 || (local && c == '%') {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func localID(iri string) string {
	rest, ok := strings.CutPrefix(iri, Namespace)
	if !ok {
		return iri
	}
	if id, err := url.PathUnescape(rest); err == nil {
		return id
	}
	return rest
}

// DecodeNTriples parses an N-Triples document. IRIs inside Namespace are
// shortened to local ids; literals keep the xsd type they carry.
func DecodeNTriples(r io.Reader) ([]Triple, error) {
	dec := rdf.NewTripleDecoder(r, rdf.NTriples)
	var out []Triple
	for {
		rt, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ntriples: statement %d: %w", len(out)+1, err)
		}
		t, err := fromRDF(rt)
		if err != nil {
			return nil, fmt.Errorf("ntriples: statement %d: %w", len(out)+1, err)
		}
		out = append(out, t)
	}
}

func fromRDF(rt rdf.Triple) (Triple, error) {
	s, err := termID(rt.Subj)
	if err != nil {
		return Triple{}, err
	}
	p := rt.Pred.String()
	if p == rdfType {
		p = TypePredicate
	} else {
		p = localID(p)
	}
	var o Value
	if lit, ok := rt.Obj.(rdf.Literal); ok {
		o = literalValue(lit)
	} else {
		id, err := termID(rt.Obj)
		if err != nil {
			return Triple{}, err
		}
		o = Ref(id)
	}
	return Triple{S: s, P: p, O: o}, nil
}

func termID(t rdf.Term) (string, error) {
	switch n := t.(type) {
	case rdf.IRI:
		return localID(n.String()), nil
	case rdf.Blank:
		return "_:" + strings.TrimPrefix(n.String(), "_:"), nil
	}
	return "", fmt.Errorf("unexpected term %s", t.String())
}

// literalValue maps an xsd-typed literal onto a Value. Language tags are
// dropped and values that do not parse as their type stay strings.
func literalValue(lit rdf.Literal) Value {
	lex := lit.String()
	switch strings.TrimPrefix(lit.DataType.String(), xsdNS) {
	case "integer", "int", "long", "short", "nonNegativeInteger", "positiveInteger":
		if n, err := strconv.ParseInt(strings.TrimSpace(lex), 10, 64); err == nil {
			return Integer(n)
		}
	case "decimal", "double", "float":
		if f, err := strconv.ParseFloat(strings.TrimSpace(lex), 64); err == nil {
			return Decimal(f)
		}
	case "boolean":
		if b, err := strconv.ParseBool(strings.TrimSpace(lex)); err == nil {
			return Boolean(b)
		}
	}
	return String(lex)
}
