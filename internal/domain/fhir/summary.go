package fhir

import (
	"strconv"
	"strings"
	"time"
)

// PatientSummary flattens a Patient resource for display.
type PatientSummary struct {
	ID            string           `json:"id"`
	Active        *bool            `json:"active,omitempty"`
	Gender        string           `json:"gender,omitempty"`
	BirthDate     string           `json:"birth_date,omitempty"`
	Age           int              `json:"age,omitempty"`
	Names         []string         `json:"names,omitempty"`
	Addresses     []AddressSummary `json:"addresses,omitempty"`
	Contacts      []ContactPoint   `json:"contacts,omitempty"`
	MaritalStatus map[string]any   `json:"marital_status,omitempty"`
}

type AddressSummary struct {
	Use  string `json:"use,omitempty"`
	Text string `json:"text"`
}

type ContactPoint struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
}

// SummarizePatient tolerates any subset of Patient fields being absent.
func SummarizePatient(res map[string]any, now time.Time) PatientSummary {
	s := PatientSummary{
		ID:            str(res, "id"),
		Active:        boolOrNil(res, "active"),
		Gender:        str(res, "gender"),
		BirthDate:     str(res, "birthDate"),
		MaritalStatus: obj(res, "maritalStatus"),
	}
	s.Age = ageFromBirthDate(s.BirthDate, now)

	for _, name := range list(res, "name") {
		if formatted := FormatHumanName(name); formatted != "" {
			s.Names = append(s.Names, formatted)
		}
	}
	for _, addr := range list(res, "address") {
		s.Addresses = append(s.Addresses, AddressSummary{
			Use:  str(addr, "use"),
			Text: formatAddress(addr),
		})
	}
	for _, tel := range list(res, "telecom") {
		s.Contacts = append(s.Contacts, ContactPoint{
			System: str(tel, "system"),
			Value:  str(tel, "value"),
			Use:    str(tel, "use"),
		})
	}
	return s
}

func PatientSummaries(b Bundle, now time.Time) []PatientSummary {
	var out []PatientSummary
	for _, res := range b.ResourcesOfType("Patient") {
		out = append(out, SummarizePatient(res, now))
	}
	return out
}

// FormatHumanName joins given names and family name, "Given Family".
func FormatHumanName(name map[string]any) string {
	parts := strList(name["given"])
	if family := str(name, "family"); family != "" {
		parts = append(parts, family)
	}
	return strings.Join(parts, " ")
}

func formatAddress(addr map[string]any) string {
	parts := strList(addr["line"])
	for _, key := range []string{"city", "state", "postalCode", "country"} {
		if v := str(addr, key); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// ageFromBirthDate computes whole years from a YYYY-MM-DD (or partial
// YYYY) birth date; 0 when unparseable.
func ageFromBirthDate(birthDate string, now time.Time) int {
	if birthDate == "" {
		return 0
	}
	yearPart, _, _ := strings.Cut(birthDate, "-")
	year, err := strconv.Atoi(yearPart)
	if err != nil || year <= 0 {
		return 0
	}
	age := now.Year() - year
	if age < 0 {
		return 0
	}
	return age
}

// ObservationSummary flattens an Observation resource; exactly one of the
// value fields is normally present.
type ObservationSummary struct {
	ID                   string           `json:"id"`
	Status               string           `json:"status,omitempty"`
	Category             []map[string]any `json:"category,omitempty"`
	Code                 map[string]any   `json:"code,omitempty"`
	Subject              map[string]any   `json:"subject,omitempty"`
	EffectiveDateTime    string           `json:"effective_date_time,omitempty"`
	ValueQuantity        map[string]any   `json:"value_quantity,omitempty"`
	ValueString          string           `json:"value_string,omitempty"`
	ValueCodeableConcept map[string]any   `json:"value_codeable_concept,omitempty"`
}

func ObservationSummaries(b Bundle) []ObservationSummary {
	var out []ObservationSummary
	for _, res := range b.ResourcesOfType("Observation") {
		out = append(out, ObservationSummary{
			ID:                   str(res, "id"),
			Status:               str(res, "status"),
			Category:             list(res, "category"),
			Code:                 obj(res, "code"),
			Subject:              obj(res, "subject"),
			EffectiveDateTime:    str(res, "effectiveDateTime"),
			ValueQuantity:        obj(res, "valueQuantity"),
			ValueString:          str(res, "valueString"),
			ValueCodeableConcept: obj(res, "valueCodeableConcept"),
		})
	}
	return out
}

// MedicationSummary flattens a MedicationRequest resource.
type MedicationSummary struct {
	ID                string           `json:"id"`
	Status            string           `json:"status,omitempty"`
	Medication        map[string]any   `json:"medication,omitempty"`
	Subject           map[string]any   `json:"subject,omitempty"`
	AuthoredOn        string           `json:"authored_on,omitempty"`
	DosageInstruction []map[string]any `json:"dosage_instruction,omitempty"`
}

func MedicationSummaries(b Bundle) []MedicationSummary {
	var out []MedicationSummary
	for _, res := range b.ResourcesOfType("MedicationRequest") {
		out = append(out, MedicationSummary{
			ID:                str(res, "id"),
			Status:            str(res, "status"),
			Medication:        obj(res, "medicationCodeableConcept"),
			Subject:           obj(res, "subject"),
			AuthoredOn:        str(res, "authoredOn"),
			DosageInstruction: list(res, "dosageInstruction"),
		})
	}
	return out
}

// CoverageSummary flattens a Coverage resource.
type CoverageSummary struct {
	ID           string           `json:"id"`
	Status       string           `json:"status,omitempty"`
	Type         map[string]any   `json:"type,omitempty"`
	Beneficiary  map[string]any   `json:"beneficiary,omitempty"`
	Payor        []map[string]any `json:"payor,omitempty"`
	Period       map[string]any   `json:"period,omitempty"`
	SubscriberID string           `json:"subscriber_id,omitempty"`
	Relationship map[string]any   `json:"relationship,omitempty"`
}

func CoverageSummaries(b Bundle) []CoverageSummary {
	var out []CoverageSummary
	for _, res := range b.ResourcesOfType("Coverage") {
		out = append(out, CoverageSummary{
			ID:           str(res, "id"),
			Status:       str(res, "status"),
			Type:         obj(res, "type"),
			Beneficiary:  obj(res, "beneficiary"),
			Payor:        list(res, "payor"),
			Period:       obj(res, "period"),
			SubscriberID: str(res, "subscriberId"),
			Relationship: obj(res, "relationship"),
		})
	}
	return out
}
