package auth

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Permissions maps role -> []permission
type Permissions map[string][]string

type permissionsFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// Permission names referenced by the router.
const (
	PermWizardRegistration   = "wizard:registration"
	PermWizardEdit           = "wizard:edit"
	PermWizardOnboarding     = "wizard:onboarding"
	PermDashboardClinics     = "dashboard:clinics"
	PermDashboardPatients    = "dashboard:patients"
	PermDashboardAppointment = "dashboard:appointments"
	PermCatalogSearch        = "catalog:search"
	PermCatalogCreate        = "catalog:create"
	PermPrescriptionWrite    = "prescription:write"
)

// LoadPermissions loads a permissions.yml file and returns a role->permissions map.
func LoadPermissions(path string) (Permissions, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf permissionsFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, err
	}
	return Permissions(pf.Roles), nil
}

// Any reports whether any of the principal's roles grants one of the permissions.
func (p Permissions) Any(pr *Principal, permissions ...string) bool {
	for _, per := range permissions {
		if HasPermission(pr, per, p) {
			return true
		}
	}
	return false
}
