package models

// PremisEvent is a PREMIS event recorded in a METS document.
type PremisEvent struct {
	Type              string `json:"event_type"`
	Detail            string `json:"event_detail"`
	Outcome           string `json:"event_outcome"`
	OutcomeDetailNote string `json:"event_outcome_detail_note"`
}

// Identifier is a typed identifier attached to a METS entity.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Entity is a file, directory or package described in a METS physical
// structMap.
type Entity struct {
	Type        string       `json:"type"`
	Path        string       `json:"path"`
	Label       string       `json:"label"`
	DMDID       string       `json:"dmdid,omitempty"`
	AMDID       string       `json:"amdid,omitempty"`
	FileUUID    string       `json:"file_uuid,omitempty"`
	Identifiers []Identifier `json:"identifiers"`
}

// Identifier returns the value of the first identifier of the given type.
func (e Entity) Identifier(idType string) (string, bool) {
	for _, id := range e.Identifiers {
		if id.Type == idType {
			return id.Value, true
		}
	}
	return "", false
}
