package intake

import (
	"fmt"
	"strings"
)

// ListKind names an array-valued part of a record that is edited through
// AddItem/RemoveItem.
type ListKind string

const (
	ListChronicConditions ListKind = "chronicConditions"
	ListAllergies         ListKind = "allergies"
	ListPastSurgeries     ListKind = "pastSurgeries"
	ListFamilyHistory     ListKind = "familyHistory"
	ListTestsRecommended  ListKind = "testsRecommended"
	ListMedicines         ListKind = "medicines"
)

func ParseListKind(s string) (ListKind, error) {
	switch k := ListKind(s); k {
	case ListChronicConditions, ListAllergies, ListPastSurgeries, ListFamilyHistory,
		ListTestsRecommended, ListMedicines:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownList, s)
}

// Staging holds the "new entry" buffers list items are built from. Each
// buffer is edited with the field-update protocol, section = buffer name.
type Staging struct {
	NewCondition     ChronicCondition   `json:"newCondition"`
	NewAllergy       Allergy            `json:"newAllergy"`
	NewSurgery       Surgery            `json:"newSurgery"`
	NewFamilyHistory FamilyHistoryEntry `json:"newFamilyHistory"`
	NewTest          RecommendedTest    `json:"newTest"`
	NewMedicine      Medicine           `json:"newMedicine"`
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// appendItem returns a new slice; the input's backing array is never shared
// with the result.
func appendItem[T any](list []T, item T) []T {
	out := make([]T, len(list), len(list)+1)
	copy(out, list)
	return append(out, item)
}

// removeAt returns list without the element at i. An out-of-range index
// returns list unchanged.
func removeAt[T any](list []T, i int) ([]T, bool) {
	if i < 0 || i >= len(list) {
		return list, false
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}

// addFromStaging appends the staged entry for kind to the profile or visit
// and clears its buffer. It reports false when the required staging fields
// are blank. visit may be nil when the record has no visit.
func addFromStaging(kind ListKind, st *Staging, p *PatientProfile, visit *Visit) (bool, error) {
	mh := &p.MedicalHistory
	switch kind {
	case ListChronicConditions:
		if blank(st.NewCondition.Condition) {
			return false, nil
		}
		c := st.NewCondition
		c.Condition = strings.TrimSpace(c.Condition)
		if blank(c.Severity) {
			c.Severity = DefaultConditionSeverity
		}
		mh.ChronicConditions = appendItem(mh.ChronicConditions, c)
		st.NewCondition = ChronicCondition{}
	case ListAllergies:
		if blank(st.NewAllergy.Allergen) {
			return false, nil
		}
		a := st.NewAllergy
		a.Allergen = strings.TrimSpace(a.Allergen)
		if blank(a.Severity) {
			a.Severity = DefaultAllergySeverity
		}
		mh.Allergies = appendItem(mh.Allergies, a)
		st.NewAllergy = Allergy{}
	case ListPastSurgeries:
		if blank(st.NewSurgery.Surgery) {
			return false, nil
		}
		s := st.NewSurgery
		s.Surgery = strings.TrimSpace(s.Surgery)
		mh.PastSurgeries = appendItem(mh.PastSurgeries, s)
		st.NewSurgery = Surgery{}
	case ListFamilyHistory:
		if blank(st.NewFamilyHistory.Relation) || blank(st.NewFamilyHistory.Condition) {
			return false, nil
		}
		f := st.NewFamilyHistory
		f.Relation = strings.TrimSpace(f.Relation)
		f.Condition = strings.TrimSpace(f.Condition)
		mh.FamilyHistory = appendItem(mh.FamilyHistory, f)
		st.NewFamilyHistory = FamilyHistoryEntry{}
	case ListTestsRecommended:
		if visit == nil {
			return false, ErrWrongStep
		}
		if blank(st.NewTest.TestName) {
			return false, nil
		}
		t := st.NewTest
		t.TestName = strings.TrimSpace(t.TestName)
		if blank(t.Urgency) {
			t.Urgency = DefaultTestUrgency
		}
		visit.Investigations.TestsRecommended = appendItem(visit.Investigations.TestsRecommended, t)
		st.NewTest = RecommendedTest{}
	case ListMedicines:
		if visit == nil {
			return false, ErrWrongStep
		}
		if blank(st.NewMedicine.MedicineName) || blank(st.NewMedicine.Dosage) {
			return false, nil
		}
		m := st.NewMedicine
		m.MedicineName = strings.TrimSpace(m.MedicineName)
		m.Dosage = strings.TrimSpace(m.Dosage)
		visit.Treatment.Medicines = appendItem(visit.Treatment.Medicines, m)
		st.NewMedicine = Medicine{}
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownList, kind)
	}
	return true, nil
}

// removeFromList removes index from the list named by kind. visit may be nil;
// removing from a missing visit is a no-op like any other out-of-range index.
func removeFromList(kind ListKind, index int, p *PatientProfile, visit *Visit) error {
	mh := &p.MedicalHistory
	switch kind {
	case ListChronicConditions:
		mh.ChronicConditions, _ = removeAt(mh.ChronicConditions, index)
	case ListAllergies:
		mh.Allergies, _ = removeAt(mh.Allergies, index)
	case ListPastSurgeries:
		mh.PastSurgeries, _ = removeAt(mh.PastSurgeries, index)
	case ListFamilyHistory:
		mh.FamilyHistory, _ = removeAt(mh.FamilyHistory, index)
	case ListTestsRecommended:
		if visit != nil {
			visit.Investigations.TestsRecommended, _ = removeAt(visit.Investigations.TestsRecommended, index)
		}
	case ListMedicines:
		if visit != nil {
			visit.Treatment.Medicines, _ = removeAt(visit.Treatment.Medicines, index)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownList, kind)
	}
	return nil
}
