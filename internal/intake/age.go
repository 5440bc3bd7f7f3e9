package intake

import (
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// dateLayouts are the date forms the upstream API has been seen to
// return. All are normalised to dateLayout.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	dateLayout,
}

// AgeOn returns the age in whole years on the given day. ok is false when dob
// cannot be parsed or lies in the future.
func AgeOn(dob string, today time.Time) (age int, ok bool) {
	birth, err := time.Parse(dateLayout, strings.TrimSpace(dob))
	if err != nil {
		return 0, false
	}
	age = today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// NormalizeDate reformats a server date to YYYY-MM-DD. Unparseable input is
// returned unchanged.
func NormalizeDate(dob string) string {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, dob); err == nil {
			return t.Format(dateLayout)
		}
	}
	return dob
}

func (p *PersonalInfo) syncAge(today time.Time) {
	if age, ok := AgeOn(p.DateOfBirth, today); ok {
		p.Age = NumericText(strconv.Itoa(age))
		return
	}
	p.Age = ""
}

func (p *PatientProfile) syncAge(today time.Time) {
	p.PersonalInfo.syncAge(today)
}
