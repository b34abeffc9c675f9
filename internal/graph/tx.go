package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/feinschmecker/internal/apperr"
)

// ErrUnknownProperty is returned when assigning a property the entity's
// class does not declare.
var ErrUnknownProperty = errors.New("graph: property not declared for class")

var errReadOnly = errors.New("graph: read-only view")

// Tx is a transactional view of the graph.
type Tx struct {
	ctx      context.Context
	tx       *sql.Tx
	schema   Schema
	readOnly bool
}

// ClassOf returns the class of id, or "" if no such entity exists.
func (t *Tx) ClassOf(id string) (string, error) {
	var class string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT o FROM triples WHERE s = ? AND p = ? ORDER BY seq LIMIT 1`, id, TypePredicate).Scan(&class)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("graph: class of %s: %w", id, err)
	}
	return class, nil
}

// Entity resolves id as an instance of class. It returns apperr.ErrNotFound
// when id is absent or belongs to another class.
func (t *Tx) Entity(class, id string) (*Entity, error) {
	got, err := t.ClassOf(id)
	if err != nil {
		return nil, err
	}
	if got == "" || got != class {
		return nil, fmt.Errorf("graph: %s %q: %w", class, id, apperr.ErrNotFound)
	}
	return t.bind(class, id)
}

// Create adds a new entity. It returns apperr.ErrAlreadyExists when the id is
// taken by any class.
func (t *Tx) Create(class, id string) (*Entity, error) {
	got, err := t.ClassOf(id)
	if err != nil {
		return nil, err
	}
	if got != "" {
		return nil, fmt.Errorf("graph: %q: %w", id, apperr.ErrAlreadyExists)
	}
	if err := t.insert(id, TypePredicate, Ref(class)); err != nil {
		return nil, err
	}
	return t.bind(class, id)
}

// GetOrCreate returns the entity of class named id, creating it if needed.
// If id is taken by a different class the id is suffixed with the class
// name. The bool result reports whether the entity was created.
func (t *Tx) GetOrCreate(class, id string) (*Entity, bool, error) {
	for _, candidate := range []string{id, id + "_" + Slug(class)} {
		got, err := t.ClassOf(candidate)
		if err != nil {
			return nil, false, err
		}
		switch got {
		case class:
			e, err := t.bind(class, candidate)
			return e, false, err
		case "":
			if err := t.insert(candidate, TypePredicate, Ref(class)); err != nil {
				return nil, false, err
			}
			e, err := t.bind(class, candidate)
			return e, true, err
		}
	}
	return nil, false, fmt.Errorf("graph: %s %q: id taken by another class: %w", class, id, apperr.ErrConflict)
}

func (t *Tx) bind(class, id string) (*Entity, error) {
	desc := t.schema.Class(class)
	if desc == nil {
		return nil, fmt.Errorf("graph: unknown class %q", class)
	}
	return &Entity{ID: id, Class: class, desc: desc, tx: t}, nil
}

// Inbound counts references to id from other entities.
func (t *Tx) Inbound(id string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT count(*) FROM triples WHERE o = ? AND dt = ? AND p <> ?`, id, string(TypeRef), TypePredicate).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("graph: inbound %s: %w", id, err)
	}
	return n, nil
}

// Destroy removes id and every reference to it.
func (t *Tx) Destroy(id string) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM triples WHERE s = ?`, id); err != nil {
		return fmt.Errorf("graph: destroy %s: %w", id, err)
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM triples WHERE o = ? AND dt = ? AND p <> ?`, id, string(TypeRef), TypePredicate); err != nil {
		return fmt.Errorf("graph: destroy refs to %s: %w", id, err)
	}
	return nil
}

// DestroyIfOrphan removes id when nothing references it any more.
func (t *Tx) DestroyIfOrphan(id string) (bool, error) {
	n, err := t.Inbound(id)
	if err != nil || n > 0 {
		return false, err
	}
	return true, t.Destroy(id)
}

func (t *Tx) values(id, prop string) ([]Value, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT o, dt FROM triples WHERE s = ? AND p = ? ORDER BY seq`, id, prop)
	if err != nil {
		return nil, fmt.Errorf("graph: values %s.%s: %w", id, prop, err)
	}
	defer rows.Close()
	var out []Value
	for rows.Next() {
		var raw any
		var dt string
		if err := rows.Scan(&raw, &dt); err != nil {
			return nil, err
		}
		out = append(out, valueFromSQL(dt, raw))
	}
	return out, rows.Err()
}

func (t *Tx) insert(id, prop string, v Value) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT OR IGNORE INTO triples (s, p, o, dt) VALUES (?, ?, ?, ?)`, id, prop, v.sqlValue(), string(v.Type))
	if err != nil {
		return fmt.Errorf("graph: insert %s.%s: %w", id, prop, err)
	}
	return nil
}

func (t *Tx) removeAll(id, prop string) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM triples WHERE s = ? AND p = ?`, id, prop); err != nil {
		return fmt.Errorf("graph: detach %s.%s: %w", id, prop, err)
	}
	return nil
}

func (t *Tx) all() ([]Triple, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT s, p, o, dt FROM triples ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("graph: dump: %w", err)
	}
	defer rows.Close()
	var out []Triple
	for rows.Next() {
		var s, p, dt string
		var raw any
		if err := rows.Scan(&s, &p, &raw, &dt); err != nil {
			return nil, fmt.Errorf("graph: dump scan: %w", err)
		}
		out = append(out, Triple{S: s, P: p, O: valueFromSQL(dt, raw)})
	}
	return out, rows.Err()
}

// Entity is a bound individual whose class descriptor was resolved once.
type Entity struct {
	ID    string
	Class string
	desc  *ClassDesc
	tx    *Tx
}

// Has reports whether the entity's class declares prop.
func (e *Entity) Has(prop string) bool { return e.desc.Has(prop) }

// Get returns the values of prop in insertion order. Properties the class
// does not declare yield nil.
func (e *Entity) Get(prop string) ([]Value, error) {
	if !e.desc.Has(prop) {
		return nil, nil
	}
	return e.tx.values(e.ID, prop)
}

// First returns the first value of prop.
func (e *Entity) First(prop string) (Value, bool, error) {
	vals, err := e.Get(prop)
	if err != nil || len(vals) == 0 {
		return Value{}, false, err
	}
	return vals[0], true, nil
}

// Set replaces every value of prop with vals and returns the detached
// values. Passing no values clears the property.
func (e *Entity) Set(prop string, vals ...Value) ([]Value, error) {
	desc, ok := e.desc.Property(prop)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, e.Class, prop)
	}
	if desc.Functional && len(vals) > 1 {
		return nil, fmt.Errorf("graph: %s.%s takes a single value", e.Class, prop)
	}
	old, err := e.tx.values(e.ID, prop)
	if err != nil {
		return nil, err
	}
	if err := e.tx.removeAll(e.ID, prop); err != nil {
		return nil, err
	}
	for _, v := range vals {
		if (desc.Kind == KindRef) != v.IsRef() {
			return nil, fmt.Errorf("graph: %s.%s: value kind mismatch", e.Class, prop)
		}
		if err := e.tx.insert(e.ID, prop, v); err != nil {
			return nil, err
		}
	}
	return old, nil
}

// SetIfEmpty assigns v when prop has no value yet.
func (e *Entity) SetIfEmpty(prop string, v Value) error {
	if !e.desc.Has(prop) {
		return nil
	}
	vals, err := e.tx.values(e.ID, prop)
	if err != nil || len(vals) > 0 {
		return err
	}
	_, err = e.Set(prop, v)
	return err
}
