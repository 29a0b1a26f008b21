package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Decision is the outcome of an authorization check.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d {
		return "allow"
	}
	return "deny"
}

// PermissionMatrix is an immutable (role, operation) table.
type PermissionMatrix struct {
	entries map[Role]map[Operation]bool
}

// NewPermissionMatrix copies table and rejects it unless every known role
// decides every known operation, and nothing unknown appears.
func NewPermissionMatrix(table map[Role]map[Operation]bool) (PermissionMatrix, error) {
	var missing, unknown []string
	entries := make(map[Role]map[Operation]bool, len(table))
	for role, ops := range table {
		if !role.Valid() {
			unknown = append(unknown, "role "+string(role))
			continue
		}
		for op := range ops {
			if _, ok := ParseOperation(string(op)); !ok {
				unknown = append(unknown, fmt.Sprintf("%s/%s", role, op))
			}
		}
	}
	for _, role := range Roles() {
		ops, ok := table[role]
		row := make(map[Operation]bool, len(Operations()))
		for _, op := range Operations() {
			allowed, decided := ops[op]
			if !ok || !decided {
				missing = append(missing, fmt.Sprintf("%s/%s", role, op))
				continue
			}
			row[op] = allowed
		}
		entries[role] = row
	}
	if len(missing) > 0 || len(unknown) > 0 {
		sort.Strings(missing)
		sort.Strings(unknown)
		return PermissionMatrix{}, fmt.Errorf("permission matrix: missing [%s] unknown [%s]",
			strings.Join(missing, ", "), strings.Join(unknown, ", "))
	}
	return PermissionMatrix{entries: entries}, nil
}

// DefaultMatrix builds the matrix from DefaultPermissions.
func DefaultMatrix() PermissionMatrix {
	m, err := NewPermissionMatrix(DefaultPermissions())
	if err != nil {
		panic(err)
	}
	return m
}

// Allowed reports the table entry; absent pairs are denied.
func (m PermissionMatrix) Allowed(role Role, op Operation) bool {
	return m.entries[role][op]
}

// Gate enforces the permission matrix.
type Gate struct {
	matrix PermissionMatrix
	opts   options
}

// NewGate builds a gate over matrix.
func NewGate(matrix PermissionMatrix, opts ...Option) *Gate {
	return &Gate{matrix: matrix, opts: buildOptions(opts)}
}

// Check is a pure lookup. Unknown roles and operations are denied.
func (g *Gate) Check(role Role, op Operation) Decision {
	d := Decision(g.matrix.Allowed(role, op))
	g.opts.metrics.ObserveDecision(d.String())
	return d
}

// Require returns an *AuthorizationError when identity may not perform op.
func (g *Gate) Require(identity IdentityClaims, op Operation) error {
	if g.Check(identity.Role, op) == Allow {
		return nil
	}
	return &AuthorizationError{Role: identity.Role, Operation: op}
}
