package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expectedGrants is the full allow list; every other pair must be denied.
var expectedGrants = map[Role][]Operation{
	RoleAdmin: Operations(),
	RoleManager: {
		OpOrganizationRead,
		OpMemberCreate, OpMemberRead, OpMemberUpdate, OpMemberImport, OpMemberExport,
		OpEventCreate, OpEventRead, OpEventUpdate, OpEventDelete,
		OpAttendanceRecord, OpAttendanceRead, OpAttendanceUpdate, OpAttendanceDelete, OpAttendanceExport,
	},
	RoleMember: {
		OpOrganizationRead, OpMemberRead, OpEventRead, OpAttendanceRecord, OpAttendanceRead,
	},
}

func TestGateMatchesMatrixExactly(t *testing.T) {
	gate := NewGate(DefaultMatrix())
	for _, role := range Roles() {
		allowed := make(map[Operation]bool)
		for _, op := range expectedGrants[role] {
			allowed[op] = true
		}
		for _, op := range Operations() {
			want := Deny
			if allowed[op] {
				want = Allow
			}
			assert.Equal(t, want, gate.Check(role, op), "%s/%s", role, op)
		}
	}
}

func TestGateDeniesUnknown(t *testing.T) {
	gate := NewGate(DefaultMatrix())
	assert.Equal(t, Deny, gate.Check("owner", OpMemberRead))
	assert.Equal(t, Deny, gate.Check("", OpMemberRead))
	assert.Equal(t, Deny, gate.Check(RoleAdmin, "member.purge"))
	assert.Equal(t, Deny, gate.Check(RoleAdmin, ""))
}

func TestGateRequire(t *testing.T) {
	gate := NewGate(DefaultMatrix())
	require.NoError(t, gate.Require(IdentityClaims{SubjectID: "u", Role: RoleManager}, OpMemberCreate))

	err := gate.Require(IdentityClaims{SubjectID: "u", Role: RoleMember}, OpMemberDelete)
	require.ErrorIs(t, err, ErrForbidden)
	var aerr *AuthorizationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, RoleMember, aerr.Role)
	assert.Equal(t, OpMemberDelete, aerr.Operation)
}

func TestNewPermissionMatrixRequiresEveryPair(t *testing.T) {
	table := DefaultPermissions()
	delete(table[RoleMember], OpUserInvite)
	_, err := NewPermissionMatrix(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member/user.invite")

	table = DefaultPermissions()
	delete(table, RoleManager)
	_, err = NewPermissionMatrix(table)
	require.Error(t, err)

	table = DefaultPermissions()
	table[RoleAdmin]["billing.read"] = true
	_, err = NewPermissionMatrix(table)
	require.Error(t, err)

	table = DefaultPermissions()
	table["owner"] = map[Operation]bool{OpMemberRead: true}
	_, err = NewPermissionMatrix(table)
	require.Error(t, err)
}

func TestMatrixIsCopied(t *testing.T) {
	table := DefaultPermissions()
	m, err := NewPermissionMatrix(table)
	require.NoError(t, err)
	table[RoleMember][OpMemberDelete] = true
	assert.False(t, m.Allowed(RoleMember, OpMemberDelete))
}

func TestParseOperation(t *testing.T) {
	op, ok := ParseOperation("attendance.export")
	require.True(t, ok)
	assert.Equal(t, OpAttendanceExport, op)
	_, ok = ParseOperation("attendance.purge")
	assert.False(t, ok)
}
