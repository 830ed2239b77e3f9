package constants

import "fmt"

const (
	RoleAdmin    = "admin"    // building management office
	RoleManager  = "manager"  // estate manager, same billing rights as admin
	RoleResident = "resident" // apartment owner or tenant
)

const ErrOnlyStaffCanAccess = "only building staff may access %s"

func RoleErrorStaff(feature string) string {
	return fmt.Sprintf(ErrOnlyStaffCanAccess, feature)
}

var (
	StaffRoles = []string{RoleAdmin, RoleManager}

	// residents pay; admins may open their own apartment's view too
	ResidentRoles = []string{RoleResident, RoleAdmin, RoleManager}
)
