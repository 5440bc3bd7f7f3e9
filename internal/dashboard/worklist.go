package dashboard

import (
	"errors"
	"fmt"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/auth"
)

var ErrUnknownWorklist = errors.New("unknown worklist")

// Worklist is one role's dashboard list and the upstream path serving it.
type Worklist struct {
	Name       string
	Path       string
	Permission string
}

// Worklist names. They match the refresh targets the wizard notifier uses.
const (
	Clinics      = "clinics"
	Patients     = "patients"
	Appointments = "appointments"
)

var worklists = []Worklist{
	{Name: Clinics, Path: apiclient.PathClinics, Permission: auth.PermDashboardClinics},
	{Name: Patients, Path: apiclient.PathPatients, Permission: auth.PermDashboardPatients},
	{Name: Appointments, Path: apiclient.PathDoctorAppointments, Permission: auth.PermDashboardAppointment},
}

// All returns every worklist in a fixed order.
func All() []Worklist {
	out := make([]Worklist, len(worklists))
	copy(out, worklists)
	return out
}

func Lookup(name string) (Worklist, error) {
	for _, wl := range worklists {
		if wl.Name == name {
			return wl, nil
		}
	}
	return Worklist{}, fmt.Errorf("%w: %q", ErrUnknownWorklist, name)
}
