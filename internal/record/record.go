// Package record defines the genealogical data model: the closed set of
// record kinds, their fields, and the reference walk that yields every
// handle a record points at.
//
// Records never hold pointers to other records. Every cross-record link is a
// Handle, so cyclic graphs (a person and the family they belong to) are
// stored without ownership cycles.
package record

// Handle is the opaque, immutable primary key of a record.
type Handle string

// Ref names a referenced record by kind and handle.
type Ref struct {
	Kind   Kind   `json:"kind"`
	Handle Handle `json:"handle"`
}

// Header carries the fields shared by every primary record.
type Header struct {
	Handle  Handle `json:"handle" msgpack:"handle"`
	ID      string `json:"id" msgpack:"id"`
	Change  int64  `json:"change" msgpack:"change"`
	Private bool   `json:"private,omitempty" msgpack:"private"`
}

// Record is implemented by the eight primary record types.
type Record interface {
	// Kind reports the record's table.
	Kind() Kind

	// Head returns the shared header so callers can read and assign the
	// handle, id and change time.
	Head() *Header

	// walk reports every handle the record references, including those held
	// by embedded sub-objects. Duplicates are allowed here.
	walk(add func(Kind, Handle))

	// typeNames reports every typed label the record carries.
	typeNames(add func(TypeSet, string))
}

// References returns the deduplicated set of handles a record points at,
// in first-seen order. Empty handles are skipped. The walk descends into
// embedded sub-objects but never into other top-level records.
func References(r Record) []Ref {
	if r == nil {
		return nil
	}
	seen := make(map[Handle]struct{})
	var out []Ref
	r.walk(func(k Kind, h Handle) {
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		out = append(out, Ref{Kind: k, Handle: h})
	})
	return out
}

// Gender of a person.
type Gender int8

const (
	GenderFemale  Gender = 0
	GenderMale    Gender = 1
	GenderUnknown Gender = 2
)

// Person is an individual.
type Person struct {
	Header         `msgpack:",inline"`
	Gender         Gender      `json:"gender" msgpack:"gender"`
	PrimaryName    Name        `json:"primary_name" msgpack:"primary_name"`
	AlternateNames []Name      `json:"alternate_names,omitempty" msgpack:"alternate_names"`
	BirthRefIndex  int         `json:"birth_ref_index" msgpack:"birth_ref_index"`
	DeathRefIndex  int         `json:"death_ref_index" msgpack:"death_ref_index"`
	EventRefs      []EventRef  `json:"event_refs,omitempty" msgpack:"event_refs"`
	Families       []Handle    `json:"families,omitempty" msgpack:"families"`
	ParentFamilies []Handle    `json:"parent_families,omitempty" msgpack:"parent_families"`
	MediaRefs      []MediaRef  `json:"media_refs,omitempty" msgpack:"media_refs"`
	Addresses      []Address   `json:"addresses,omitempty" msgpack:"addresses"`
	Attributes     []Attribute `json:"attributes,omitempty" msgpack:"attributes"`
	URLs           []URL       `json:"urls,omitempty" msgpack:"urls"`
	SourceRefs     []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes          []Handle    `json:"notes,omitempty" msgpack:"notes"`
	Associations   []PersonRef `json:"associations,omitempty" msgpack:"associations"`
}

func (p *Person) Kind() Kind    { return KindPerson }
func (p *Person) Head() *Header { return &p.Header }

// Surname returns the surname of the primary name.
func (p *Person) Surname() string { return p.PrimaryName.Surname }

func (p *Person) walk(add func(Kind, Handle)) {
	p.PrimaryName.walk(add)
	for i := range p.AlternateNames {
		p.AlternateNames[i].walk(add)
	}
	for i := range p.EventRefs {
		p.EventRefs[i].walk(add)
	}
	for _, h := range p.Families {
		add(KindFamily, h)
	}
	for _, h := range p.ParentFamilies {
		add(KindFamily, h)
	}
	walkMedia(p.MediaRefs, add)
	for i := range p.Addresses {
		p.Addresses[i].walk(add)
	}
	walkAttributes(p.Attributes, add)
	walkSources(p.SourceRefs, add)
	walkNotes(p.Notes, add)
	for i := range p.Associations {
		p.Associations[i].walk(add)
	}
}

func (p *Person) typeNames(add func(TypeSet, string)) {
	p.PrimaryName.typeNames(add)
	for i := range p.AlternateNames {
		p.AlternateNames[i].typeNames(add)
	}
	for i := range p.EventRefs {
		p.EventRefs[i].typeNames(add)
	}
	attributeTypes(p.Attributes, add)
	for _, u := range p.URLs {
		add(TypeSetURLTypes, u.Type)
	}
}

// Family groups two partners and their children.
type Family struct {
	Header     `msgpack:",inline"`
	Father     Handle      `json:"father,omitempty" msgpack:"father"`
	Mother     Handle      `json:"mother,omitempty" msgpack:"mother"`
	Children   []ChildRef  `json:"children,omitempty" msgpack:"children"`
	Type       string      `json:"type,omitempty" msgpack:"type"`
	EventRefs  []EventRef  `json:"event_refs,omitempty" msgpack:"event_refs"`
	MediaRefs  []MediaRef  `json:"media_refs,omitempty" msgpack:"media_refs"`
	Attributes []Attribute `json:"attributes,omitempty" msgpack:"attributes"`
	SourceRefs []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (f *Family) Kind() Kind    { return KindFamily }
func (f *Family) Head() *Header { return &f.Header }

func (f *Family) walk(add func(Kind, Handle)) {
	add(KindPerson, f.Father)
	add(KindPerson, f.Mother)
	for i := range f.Children {
		f.Children[i].walk(add)
	}
	for i := range f.EventRefs {
		f.EventRefs[i].walk(add)
	}
	walkMedia(f.MediaRefs, add)
	walkAttributes(f.Attributes, add)
	walkSources(f.SourceRefs, add)
	walkNotes(f.Notes, add)
}

func (f *Family) typeNames(add func(TypeSet, string)) {
	add(TypeSetFamilyRelTypes, f.Type)
	for _, c := range f.Children {
		add(TypeSetChildRefTypes, c.FatherRel)
		add(TypeSetChildRefTypes, c.MotherRel)
	}
	for i := range f.EventRefs {
		f.EventRefs[i].typeNames(add)
	}
	attributeTypes(f.Attributes, add)
}

// Event is something that happened at a date and place.
type Event struct {
	Header      `msgpack:",inline"`
	Type        string      `json:"type" msgpack:"type"`
	Date        string      `json:"date,omitempty" msgpack:"date"`
	Description string      `json:"description,omitempty" msgpack:"description"`
	Place       Handle      `json:"place,omitempty" msgpack:"place"`
	MediaRefs   []MediaRef  `json:"media_refs,omitempty" msgpack:"media_refs"`
	Attributes  []Attribute `json:"attributes,omitempty" msgpack:"attributes"`
	SourceRefs  []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes       []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (e *Event) Kind() Kind    { return KindEvent }
func (e *Event) Head() *Header { return &e.Header }

func (e *Event) walk(add func(Kind, Handle)) {
	add(KindPlace, e.Place)
	walkMedia(e.MediaRefs, add)
	walkAttributes(e.Attributes, add)
	walkSources(e.SourceRefs, add)
	walkNotes(e.Notes, add)
}

func (e *Event) typeNames(add func(TypeSet, string)) {
	add(TypeSetEventTypes, e.Type)
	attributeTypes(e.Attributes, add)
}

// Place is a location.
type Place struct {
	Header     `msgpack:",inline"`
	Title      string      `json:"title" msgpack:"title"`
	Latitude   string      `json:"latitude,omitempty" msgpack:"latitude"`
	Longitude  string      `json:"longitude,omitempty" msgpack:"longitude"`
	Location   Location    `json:"location" msgpack:"location"`
	URLs       []URL       `json:"urls,omitempty" msgpack:"urls"`
	MediaRefs  []MediaRef  `json:"media_refs,omitempty" msgpack:"media_refs"`
	SourceRefs []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (p *Place) Kind() Kind    { return KindPlace }
func (p *Place) Head() *Header { return &p.Header }

func (p *Place) walk(add func(Kind, Handle)) {
	walkMedia(p.MediaRefs, add)
	walkSources(p.SourceRefs, add)
	walkNotes(p.Notes, add)
}

func (p *Place) typeNames(add func(TypeSet, string)) {
	for _, u := range p.URLs {
		add(TypeSetURLTypes, u.Type)
	}
}

// Source is a document or other origin of evidence.
type Source struct {
	Header    `msgpack:",inline"`
	Title     string            `json:"title" msgpack:"title"`
	Author    string            `json:"author,omitempty" msgpack:"author"`
	PubInfo   string            `json:"pub_info,omitempty" msgpack:"pub_info"`
	Abbrev    string            `json:"abbrev,omitempty" msgpack:"abbrev"`
	MediaRefs []MediaRef        `json:"media_refs,omitempty" msgpack:"media_refs"`
	RepoRefs  []RepoRef         `json:"repo_refs,omitempty" msgpack:"repo_refs"`
	DataMap   map[string]string `json:"data_map,omitempty" msgpack:"data_map"`
	Notes     []Handle          `json:"notes,omitempty" msgpack:"notes"`
}

func (s *Source) Kind() Kind    { return KindSource }
func (s *Source) Head() *Header { return &s.Header }

func (s *Source) walk(add func(Kind, Handle)) {
	walkMedia(s.MediaRefs, add)
	for i := range s.RepoRefs {
		s.RepoRefs[i].walk(add)
	}
	walkNotes(s.Notes, add)
}

func (s *Source) typeNames(add func(TypeSet, string)) {
	for _, r := range s.RepoRefs {
		add(TypeSetSourceMediaTypes, r.MediaType)
	}
}

// Media is an external object such as a photo or scanned document.
type Media struct {
	Header      `msgpack:",inline"`
	Path        string      `json:"path" msgpack:"path"`
	MimeType    string      `json:"mime_type,omitempty" msgpack:"mime_type"`
	Description string      `json:"description,omitempty" msgpack:"description"`
	Date        string      `json:"date,omitempty" msgpack:"date"`
	Attributes  []Attribute `json:"attributes,omitempty" msgpack:"attributes"`
	SourceRefs  []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes       []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (m *Media) Kind() Kind    { return KindMedia }
func (m *Media) Head() *Header { return &m.Header }

func (m *Media) walk(add func(Kind, Handle)) {
	walkAttributes(m.Attributes, add)
	walkSources(m.SourceRefs, add)
	walkNotes(m.Notes, add)
}

func (m *Media) typeNames(add func(TypeSet, string)) {
	attributeTypes(m.Attributes, add)
}

// Repository is an archive or library holding sources.
type Repository struct {
	Header    `msgpack:",inline"`
	Type      string    `json:"type,omitempty" msgpack:"type"`
	Name      string    `json:"name" msgpack:"name"`
	Addresses []Address `json:"addresses,omitempty" msgpack:"addresses"`
	URLs      []URL     `json:"urls,omitempty" msgpack:"urls"`
	Notes     []Handle  `json:"notes,omitempty" msgpack:"notes"`
}

func (r *Repository) Kind() Kind    { return KindRepository }
func (r *Repository) Head() *Header { return &r.Header }

func (r *Repository) walk(add func(Kind, Handle)) {
	for i := range r.Addresses {
		r.Addresses[i].walk(add)
	}
	walkNotes(r.Notes, add)
}

func (r *Repository) typeNames(add func(TypeSet, string)) {
	add(TypeSetRepositoryTypes, r.Type)
	for _, u := range r.URLs {
		add(TypeSetURLTypes, u.Type)
	}
}

// Note is free text attached to other records. It references nothing.
type Note struct {
	Header `msgpack:",inline"`
	Text   string `json:"text" msgpack:"text"`
	Format int    `json:"format,omitempty" msgpack:"format"`
	Type   string `json:"type,omitempty" msgpack:"type"`
}

func (n *Note) Kind() Kind    { return KindNote }
func (n *Note) Head() *Header { return &n.Header }

func (n *Note) walk(func(Kind, Handle)) {}

func (n *Note) typeNames(add func(TypeSet, string)) {
	add(TypeSetNoteTypes, n.Type)
}
