package auth

// Operation is a tenant data operation guarded by the permission matrix.
type Operation string

const (
	OpOrganizationRead   Operation = "organization.read"
	OpOrganizationUpdate Operation = "organization.update"

	OpMemberCreate Operation = "member.create"
	OpMemberRead   Operation = "member.read"
	OpMemberUpdate Operation = "member.update"
	OpMemberDelete Operation = "member.delete"
	OpMemberImport Operation = "member.import"
	OpMemberExport Operation = "member.export"

	OpEventCreate Operation = "event.create"
	OpEventRead   Operation = "event.read"
	OpEventUpdate Operation = "event.update"
	OpEventDelete Operation = "event.delete"

	OpAttendanceRecord Operation = "attendance.record"
	OpAttendanceRead   Operation = "attendance.read"
	OpAttendanceUpdate Operation = "attendance.update"
	OpAttendanceDelete Operation = "attendance.delete"
	OpAttendanceExport Operation = "attendance.export"

	OpUserInvite     Operation = "user.invite"
	OpUserRoleUpdate Operation = "user.role.update"
)

// Operations lists the closed operation set in a stable order.
func Operations() []Operation {
	return []Operation{
		OpOrganizationRead, OpOrganizationUpdate,
		OpMemberCreate, OpMemberRead, OpMemberUpdate, OpMemberDelete, OpMemberImport, OpMemberExport,
		OpEventCreate, OpEventRead, OpEventUpdate, OpEventDelete,
		OpAttendanceRecord, OpAttendanceRead, OpAttendanceUpdate, OpAttendanceDelete, OpAttendanceExport,
		OpUserInvite, OpUserRoleUpdate,
	}
}

// ParseOperation reports whether raw names a known operation.
func ParseOperation(raw string) (Operation, bool) {
	op := Operation(raw)
	for _, known := range Operations() {
		if op == known {
			return op, true
		}
	}
	return "", false
}

func (o Operation) String() string { return string(o) }

// DefaultPermissions is the audited permission table. Every role lists every
// operation, denials included; a new operation must be added to all three.
func DefaultPermissions() map[Role]map[Operation]bool {
	return map[Role]map[Operation]bool{
		RoleAdmin: {
			OpOrganizationRead:   true,
			OpOrganizationUpdate: true,
			OpMemberCreate:       true,
			OpMemberRead:         true,
			OpMemberUpdate:       true,
			OpMemberDelete:       true,
			OpMemberImport:       true,
			OpMemberExport:       true,
			OpEventCreate:        true,
			OpEventRead:          true,
			OpEventUpdate:        true,
			OpEventDelete:        true,
			OpAttendanceRecord:   true,
			OpAttendanceRead:     true,
			OpAttendanceUpdate:   true,
			OpAttendanceDelete:   true,
			OpAttendanceExport:   true,
			OpUserInvite:         true,
			OpUserRoleUpdate:     true,
		},
		RoleManager: {
			OpOrganizationRead:   true,
			OpOrganizationUpdate: false,
			OpMemberCreate:       true,
			OpMemberRead:         true,
			OpMemberUpdate:       true,
			OpMemberDelete:       false,
			OpMemberImport:       true,
			OpMemberExport:       true,
			OpEventCreate:        true,
			OpEventRead:          true,
			OpEventUpdate:        true,
			OpEventDelete:        true,
			OpAttendanceRecord:   true,
			OpAttendanceRead:     true,
			OpAttendanceUpdate:   true,
			OpAttendanceDelete:   true,
			OpAttendanceExport:   true,
			OpUserInvite:         false,
			OpUserRoleUpdate:     false,
		},
		RoleMember: {
			OpOrganizationRead:   true,
			OpOrganizationUpdate: false,
			OpMemberCreate:       false,
			OpMemberRead:         true,
			OpMemberUpdate:       false,
			OpMemberDelete:       false,
			OpMemberImport:       false,
			OpMemberExport:       false,
			OpEventCreate:        false,
			OpEventRead:          true,
			OpEventUpdate:        false,
			OpEventDelete:        false,
			OpAttendanceRecord:   true,
			OpAttendanceRead:     true,
			OpAttendanceUpdate:   false,
			OpAttendanceDelete:   false,
			OpAttendanceExport:   false,
			OpUserInvite:         false,
			OpUserRoleUpdate:     false,
		},
	}
}
