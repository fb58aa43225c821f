package mets

import (
	"github.com/ternarybob/amsc/pkg/models"
)

// PremisEvents returns every PREMIS event in the document in document order.
// Both PREMIS 2 and PREMIS 3 namespaces are read.
func PremisEvents(doc *Document) ([]models.PremisEvent, error) {
	nodes, err := doc.Find(nil, "//premis:event|//premis3:event")
	if err != nil {
		return nil, err
	}

	events := make([]models.PremisEvent, 0, len(nodes))
	for _, n := range nodes {
		var ev models.PremisEvent
		fields := []struct {
			dst  *string
			expr string
		}{
			{&ev.Type, "premis:eventType|premis3:eventType"},
			{&ev.Detail, "premis:eventDetail|premis3:eventDetailInformation/premis3:eventDetail"},
			{&ev.Outcome, "premis:eventOutcomeInformation/premis:eventOutcome|premis3:eventOutcomeInformation/premis3:eventOutcome"},
			{&ev.OutcomeDetailNote, "premis:eventOutcomeInformation/premis:eventOutcomeDetail/premis:eventOutcomeDetailNote|" +
				"premis3:eventOutcomeInformation/premis3:eventOutcomeDetail/premis3:eventOutcomeDetailNote"},
		}
		for _, f := range fields {
			if *f.dst, err = doc.TextOf(n, f.expr); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
