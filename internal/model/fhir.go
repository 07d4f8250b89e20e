package model

import (
	"fmt"
	"time"
)

const (
	NamasteSystem = "https://ndhm.gov.in/fhir/CodeSystem/namaste"
	ICD11System   = "http://id.who.int/icd/release/11/mms"
)

type FHIRMeta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type BundleEntry struct {
	FullURL  string      `json:"fullUrl,omitempty"`
	Resource interface{} `json:"resource"`
}

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Timestamp    time.Time     `json:"timestamp"`
	Entry        []BundleEntry `json:"entry"`
}

func formatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

var encounterStatus = map[VisitStatus]string{
	VisitStatusDraft:     "planned",
	VisitStatusCompleted: "finished",
	VisitStatusCancelled: "cancelled",
}

// ToFHIR renders the visit as a collection bundle holding an Encounter and
// a Condition coded in both NAMASTE and ICD-11.
func (v *PatientVisit) ToFHIR() Bundle {
	encounterID := v.ID.String()
	meta := FHIRMeta{VersionID: fmt.Sprintf("%d", v.Version), LastUpdated: v.UpdatedAt}
	subject := Reference{Reference: formatReference("Patient", v.PatientID.String()), Display: StrVal(v.PatientName)}

	encounter := map[string]interface{}{
		"resourceType": "Encounter",
		"id":           encounterID,
		"meta":         meta,
		"status":       encounterStatus[v.Status],
		"subject":      subject,
		"participant": []map[string]interface{}{{
			"individual": Reference{Reference: formatReference("Practitioner", v.DoctorID.String()), Display: StrVal(v.DoctorName)},
		}},
		"period": map[string]string{"start": v.VisitDate},
	}
	if v.ChiefComplaint != nil {
		encounter["reasonCode"] = []CodeableConcept{{Text: *v.ChiefComplaint}}
	}
	if v.HospitalName != nil {
		encounter["serviceProvider"] = Reference{Display: *v.HospitalName}
	}

	code := CodeableConcept{Text: v.Diagnosis}
	if v.NamasteCode != nil {
		code.Coding = append(code.Coding, Coding{System: NamasteSystem, Code: *v.NamasteCode, Display: StrVal(v.NamasteLabel)})
	}
	if v.ICD11Code != nil {
		code.Coding = append(code.Coding, Coding{System: ICD11System, Code: *v.ICD11Code, Display: StrVal(v.ICD11Label)})
	}
	condition := map[string]interface{}{
		"resourceType": "Condition",
		"id":           encounterID + "-condition",
		"meta":         meta,
		"code":         code,
		"subject":      subject,
		"encounter":    Reference{Reference: formatReference("Encounter", encounterID)},
		"recordedDate": v.VisitDate,
	}
	if v.Notes != nil {
		condition["note"] = []map[string]string{{"text": *v.Notes}}
	}

	return Bundle{
		ResourceType: "Bundle",
		Type:         "collection",
		Timestamp:    v.UpdatedAt,
		Entry: []BundleEntry{
			{FullURL: "urn:uuid:" + encounterID, Resource: encounter},
			{FullURL: "urn:uuid:" + encounterID + "-condition", Resource: condition},
		},
	}
}

var auditEventAction = map[string]string{
	AuditActionCreate: "C",
	AuditActionRead:   "R",
	AuditActionSearch: "E",
	AuditActionUpdate: "U",
	AuditActionDelete: "D",
	AuditActionLogin:  "E",
	AuditActionLogout: "E",
}

// ToFHIR renders the entry as an AuditEvent. Failed logins carry outcome 4.
func (a *AuditLog) ToFHIR() map[string]interface{} {
	action, ok := auditEventAction[a.Action]
	if !ok {
		action = "E"
	}
	outcome := "0"
	if success, ok := a.NewValues["success"].(bool); ok && !success {
		outcome = "4"
	}

	agent := map[string]interface{}{"requestor": true}
	if a.UserID != nil {
		agent["who"] = Reference{Reference: formatReference("Practitioner", a.UserID.String()), Display: StrVal(a.UserName)}
	}
	if a.IPAddress != nil {
		agent["network"] = map[string]string{"address": *a.IPAddress, "type": "2"}
	}

	entity := map[string]interface{}{"type": Coding{Code: a.ResourceType}}
	if a.ResourceID != nil {
		entity["what"] = Reference{Reference: formatReference(a.ResourceType, *a.ResourceID)}
	}

	return map[string]interface{}{
		"resourceType": "AuditEvent",
		"id":           a.ID.String(),
		"type":         Coding{System: "http://dicom.nema.org/resources/ontology/DCM", Code: "110110", Display: "Patient Record"},
		"subtype":      []Coding{{Code: a.Action}},
		"action":       action,
		"recorded":     a.CreatedAt,
		"outcome":      outcome,
		"agent":        []interface{}{agent},
		"source":       map[string]interface{}{"observer": Reference{Display: "CodeVeda API"}},
		"entity":       []interface{}{entity},
	}
}
