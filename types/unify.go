package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trompe.types")

// ErrTypeConflict is matched by every unification failure.
var ErrTypeConflict = errors.New("type conflict")

// ConflictError reports the pair of types that could not be unified.
// Expected and Actual are rendered at the point of failure.
type ConflictError struct {
	Expected string
	Actual   string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("type conflict: expected %s, got %s (%s)", e.Expected, e.Actual, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrTypeConflict
}

// Unifier is an arena of metavariable slots. It is not safe for concurrent
// use.
type Unifier struct {
	parent  []int
	rank    []int
	binding []Type // meaningful on roots only; nil when unbound

	count int // unify calls, for trace output
}

// NewUnifier returns an empty unifier.
func NewUnifier() *Unifier {
	return &Unifier{}
}

// NewMeta allocates a fresh unbound metavariable.
func (u *Unifier) NewMeta() Meta {
	id := len(u.parent)
	u.parent = append(u.parent, id)
	u.rank = append(u.rank, 0)
	u.binding = append(u.binding, nil)
	return Meta{ID: id}
}

// Len returns the number of metavariables allocated.
func (u *Unifier) Len() int { return len(u.parent) }

// find returns the representative slot of id, compressing the path.
func (u *Unifier) find(id int) int {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		next := u.parent[id]
		u.parent[id] = root
		id = next
	}
	return root
}

func (u *Unifier) valid(m Meta) bool {
	return m.ID >= 0 && m.ID < len(u.parent)
}

// Binding returns the type m is bound to, if any.
func (u *Unifier) Binding(m Meta) (Type, bool) {
	if !u.valid(m) {
		return nil, false
	}
	t := u.binding[u.find(m.ID)]
	return t, t != nil
}

// Same reports whether a and b have been merged into one variable.
func (u *Unifier) Same(a, b Meta) bool {
	return u.valid(a) && u.valid(b) && u.find(a.ID) == u.find(b.ID)
}

// walk follows bindings until it reaches a non-Meta type or an unbound
// representative.
func (u *Unifier) walk(t Type) Type {
	for {
		m, ok := t.(Meta)
		if !ok || !u.valid(m) {
			return t
		}
		root := u.find(m.ID)
		if u.binding[root] == nil {
			return Meta{ID: root}
		}
		t = u.binding[root]
	}
}

func (u *Unifier) union(a, b int) {
	if u.rank[a] < u.rank[b] {
		a, b = b, a
	}
	u.parent[b] = a
	if u.rank[a] == u.rank[b] {
		u.rank[a]++
	}
}

// occurs reports whether the unbound root appears anywhere in t.
func (u *Unifier) occurs(root int, t Type) bool {
	switch x := u.walk(t).(type) {
	case Meta:
		return u.valid(x) && u.find(x.ID) == root
	case App:
		for _, a := range x.Args {
			if u.occurs(root, a) {
				return true
			}
		}
	case Assoc:
		if u.occurs(root, x.Type) {
			return true
		}
		if x.Default != nil {
			return u.occurs(root, x.Default)
		}
	}
	return false
}

// Unify makes expected and actual equal, binding metavariables as needed.
// On failure some bindings made before the conflict was found may remain.
func (u *Unifier) Unify(expected, actual Type) error {
	id := u.count
	u.count++
	log.Debugf("==> unify %d: %s and %s", id, u.String(expected), u.String(actual))
	err := u.unify(expected, actual)
	if err != nil {
		log.Debugf("<== unify %d failed: %v", id, err)
	} else {
		log.Debugf("<== unify %d", id)
	}
	return err
}

func (u *Unifier) unify(expected, actual Type) error {
	ex := u.walk(expected)
	ac := u.walk(actual)

	if mx, ok := ex.(Meta); ok {
		if my, ok := ac.(Meta); ok {
			if !u.valid(mx) || !u.valid(my) {
				return u.conflict(ex, ac, "metavariable from another unifier")
			}
			if mx.ID != my.ID {
				u.union(mx.ID, my.ID)
			}
			return nil
		}
		return u.bind(mx, ac, ex, ac)
	}
	if my, ok := ac.(Meta); ok {
		return u.bind(my, ex, ex, ac)
	}

	switch x := ex.(type) {
	case App:
		y, ok := ac.(App)
		if !ok {
			return u.conflict(ex, ac, "shape mismatch")
		}
		if x.Con != y.Con {
			return u.conflict(ex, ac, fmt.Sprintf("%s is not %s", x.Con, y.Con))
		}
		if len(x.Args) != len(y.Args) {
			return u.conflict(ex, ac, fmt.Sprintf("%d type arguments, got %d", len(x.Args), len(y.Args)))
		}
		for i := range x.Args {
			if err := u.unify(x.Args[i], y.Args[i]); err != nil {
				return err
			}
		}
		return nil

	case Assoc:
		y, ok := ac.(Assoc)
		if !ok {
			return u.conflict(ex, ac, "shape mismatch")
		}
		if x.Name != y.Name {
			return u.conflict(ex, ac, fmt.Sprintf("field %s is not %s", x.Name, y.Name))
		}
		if err := u.unify(x.Type, y.Type); err != nil {
			return err
		}
		if x.Default != nil && y.Default != nil {
			return u.unify(x.Default, y.Default)
		}
		return nil

	default:
		return u.conflict(ex, ac, "unknown type")
	}
}

// bind points the unbound m at t.
func (u *Unifier) bind(m Meta, t Type, ex, ac Type) error {
	if !u.valid(m) {
		return u.conflict(ex, ac, "metavariable from another unifier")
	}
	root := u.find(m.ID)
	if u.occurs(root, t) {
		return u.conflict(ex, ac, "infinite type")
	}
	u.binding[root] = t
	return nil
}

func (u *Unifier) conflict(ex, ac Type, reason string) error {
	p := &printer{u: u, names: map[int]string{}}
	var sbEx, sbAc strings.Builder
	p.write(&sbEx, ex)
	p.write(&sbAc, ac)
	return &ConflictError{Expected: sbEx.String(), Actual: sbAc.String(), Reason: reason}
}

// Resolve returns t with every bound metavariable replaced by its binding.
// Unbound metavariables are replaced by their representative.
func (u *Unifier) Resolve(t Type) Type {
	switch x := u.walk(t).(type) {
	case App:
		if len(x.Args) == 0 {
			return x
		}
		args := make([]Type, len(x.Args))
		for i, a := range x.Args {
			args[i] = u.Resolve(a)
		}
		return App{Con: x.Con, Args: args}
	case Assoc:
		r := Assoc{Name: x.Name, Type: u.Resolve(x.Type)}
		if x.Default != nil {
			r.Default = u.Resolve(x.Default)
		}
		return r
	default:
		return x
	}
}

// String renders t under the current bindings.
func (u *Unifier) String(t Type) string {
	p := &printer{u: u, names: map[int]string{}}
	var sb strings.Builder
	p.write(&sb, t)
	return sb.String()
}
