package record

import "sort"

// TypeSet names a family of typed labels (event types, attribute types...).
// Labels outside the built-in vocabulary are custom types, and the store
// remembers them so editors can offer them again.
type TypeSet string

const (
	TypeSetEventTypes       TypeSet = "event_types"
	TypeSetEventRoles       TypeSet = "event_roles"
	TypeSetAttributeTypes   TypeSet = "attribute_types"
	TypeSetFamilyRelTypes   TypeSet = "family_rel_types"
	TypeSetChildRefTypes    TypeSet = "child_ref_types"
	TypeSetNameTypes        TypeSet = "name_types"
	TypeSetNoteTypes        TypeSet = "note_types"
	TypeSetRepositoryTypes  TypeSet = "repository_types"
	TypeSetURLTypes         TypeSet = "url_types"
	TypeSetSourceMediaTypes TypeSet = "source_media_types"
)

// TypeSets returns every type set in a stable order.
func TypeSets() []TypeSet {
	return []TypeSet{
		TypeSetEventTypes,
		TypeSetEventRoles,
		TypeSetAttributeTypes,
		TypeSetFamilyRelTypes,
		TypeSetChildRefTypes,
		TypeSetNameTypes,
		TypeSetNoteTypes,
		TypeSetRepositoryTypes,
		TypeSetURLTypes,
		TypeSetSourceMediaTypes,
	}
}

var builtinTypes = map[TypeSet]map[string]bool{
	TypeSetEventTypes: set(
		"Birth", "Death", "Baptism", "Burial", "Christening", "Marriage",
		"Divorce", "Engagement", "Census", "Residence", "Occupation",
		"Immigration", "Emigration", "Graduation", "Military Service",
		"Probate", "Will", "Cremation", "Adopted",
	),
	TypeSetEventRoles: set(
		"Primary", "Clergy", "Celebrant", "Aide", "Bride", "Groom",
		"Witness", "Family", "Informant",
	),
	TypeSetAttributeTypes: set(
		"Caste", "Description", "Identification Number", "National Origin",
		"Number of Children", "Social Security Number", "Nickname", "Cause",
		"Agency", "Age", "Father's Age", "Mother's Age", "Witness", "Time",
	),
	TypeSetFamilyRelTypes: set("Married", "Unmarried", "Civil Union", "Unknown"),
	TypeSetChildRefTypes: set(
		"Birth", "Adopted", "Stepchild", "Sponsored", "Foster", "Unknown", "None",
	),
	TypeSetNameTypes: set("Birth Name", "Also Known As", "Married Name", "Unknown"),
	TypeSetNoteTypes: set(
		"General", "Research", "Transcript", "Person Note", "Family Note",
		"Event Note", "Place Note", "Source Note", "Media Note",
		"Repository Note", "Source text", "Citation", "Report",
	),
	TypeSetRepositoryTypes: set(
		"Library", "Cemetery", "Church", "Archive", "Album", "Web site",
		"Bookstore", "Collection", "Safe", "Unknown",
	),
	TypeSetURLTypes: set("E-mail", "Web Home", "Web Search", "FTP", "Unknown"),
	TypeSetSourceMediaTypes: set(
		"Audio", "Book", "Card", "Electronic", "Fiche", "Film", "Magazine",
		"Manuscript", "Map", "Newspaper", "Photo", "Tombstone", "Video", "Unknown",
	),
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// IsBuiltinType reports whether name belongs to the built-in vocabulary of ts.
func IsBuiltinType(ts TypeSet, name string) bool {
	return builtinTypes[ts][name]
}

// CustomTypes returns the non-empty labels on r that are not built in,
// grouped by type set and sorted within each set.
func CustomTypes(r Record) map[TypeSet][]string {
	if r == nil {
		return nil
	}
	found := make(map[TypeSet]map[string]struct{})
	r.typeNames(func(ts TypeSet, name string) {
		if name == "" || IsBuiltinType(ts, name) {
			return
		}
		if found[ts] == nil {
			found[ts] = make(map[string]struct{})
		}
		found[ts][name] = struct{}{}
	})
	if len(found) == 0 {
		return nil
	}
	out := make(map[TypeSet][]string, len(found))
	for ts, names := range found {
		list := make([]string, 0, len(names))
		for n := range names {
			list = append(list, n)
		}
		sort.Strings(list)
		out[ts] = list
	}
	return out
}
