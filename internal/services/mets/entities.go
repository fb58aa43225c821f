package mets

import (
	"fmt"
	"path"

	"github.com/antchfx/xmlquery"

	"github.com/ternarybob/amsc/pkg/models"
)

// Entity types reported by Entities.
const (
	EntityAIP       = "aip"
	EntityDirectory = "directory"
	EntityFile      = "file"
)

// Entities walks the physical structMap and returns the AIP, every directory
// and every file it describes, each with the identifiers recorded for it in
// the dmdSec (directories) or amdSec (files). The top-level objects directory
// and submissionDocumentation subtrees are not reported.
func Entities(doc *Document) ([]models.Entity, error) {
	structMap, err := doc.FindOne(nil, "//mets:structMap[@TYPE='physical']")
	if err != nil {
		return nil, err
	}
	if structMap == nil {
		return nil, fmt.Errorf("METS document has no physical structMap")
	}

	w := &entityWalker{doc: doc, structMap: structMap}
	if err := w.walk(structMap, ""); err != nil {
		return nil, err
	}
	for i := range w.entities {
		if err := w.addIdentifiers(&w.entities[i]); err != nil {
			return nil, err
		}
	}
	return w.entities, nil
}

type entityWalker struct {
	doc       *Document
	structMap *xmlquery.Node
	entities  []models.Entity
}

func (w *entityWalker) walk(parent *xmlquery.Node, dir string) error {
	dirs, err := w.doc.Find(parent, "mets:div[@TYPE='Directory']")
	if err != nil {
		return err
	}
	for _, d := range dirs {
		name := d.SelectAttr("LABEL")
		p := path.Join(dir, name)
		topLevel := parent == w.structMap
		submissionDocs := parent.SelectAttr("LABEL") == "objects" && name == "submissionDocumentation"
		objects := topLevel && name == "objects"

		if !objects && !submissionDocs {
			entityType := EntityDirectory
			if topLevel {
				entityType = EntityAIP
			}
			w.entities = append(w.entities, models.Entity{
				Type:  entityType,
				Path:  p,
				Label: name,
				DMDID: d.SelectAttr("DMDID"),
			})
		}
		if submissionDocs {
			continue
		}
		if err := w.walk(d, p); err != nil {
			return err
		}
	}

	items, err := w.doc.Find(parent, "mets:div[@TYPE='Item']")
	if err != nil {
		return err
	}
	for _, item := range items {
		name := item.SelectAttr("LABEL")
		e := models.Entity{Type: EntityFile, Path: path.Join(dir, name), Label: name}

		fptr, err := w.doc.FindOne(item, "mets:fptr")
		if err != nil {
			return err
		}
		if fptr != nil {
			file, err := w.doc.FindOne(nil, fmt.Sprintf("//mets:file[@ID='%s']", fptr.SelectAttr("FILEID")))
			if err != nil {
				return err
			}
			if file != nil {
				e.AMDID = file.SelectAttr("ADMID")
			}
		}
		w.entities = append(w.entities, e)
	}
	return nil
}

func (w *entityWalker) addIdentifiers(e *models.Entity) error {
	var expr string
	switch {
	case e.Type == EntityFile && e.AMDID != "":
		expr = fmt.Sprintf("//mets:amdSec[@ID='%s']//mets:mdWrap/mets:xmlData/premis:object/premis:objectIdentifier|"+
			"//mets:amdSec[@ID='%s']//mets:mdWrap/mets:xmlData/premis3:object/premis3:objectIdentifier", e.AMDID, e.AMDID)
	case e.Type != EntityFile && e.DMDID != "":
		expr = fmt.Sprintf("//mets:dmdSec[@ID='%s']/mets:mdWrap/mets:xmlData/premis3:object/premis3:objectIdentifier", e.DMDID)
	default:
		return nil
	}

	nodes, err := w.doc.Find(nil, expr)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		idType, err := w.doc.TextOf(n, "premis:objectIdentifierType|premis3:objectIdentifierType")
		if err != nil {
			return err
		}
		value, err := w.doc.TextOf(n, "premis:objectIdentifierValue|premis3:objectIdentifierValue")
		if err != nil {
			return err
		}
		e.Identifiers = append(e.Identifiers, models.Identifier{Type: idType, Value: value})
	}
	if e.Type == EntityFile {
		if id, ok := e.Identifier("UUID"); ok && IsUUID(id) {
			e.FileUUID = id
		}
	}
	return nil
}

// ID returns the metadata section id of an entity: the DMDID of a directory
// or AIP, the ADMID of a file.
func ID(e models.Entity) string {
	if e.Type == EntityFile {
		return e.AMDID
	}
	return e.DMDID
}
