package record

// Name is a personal name. A person has one primary and any number of
// alternate names.
type Name struct {
	First      string      `json:"first,omitempty" msgpack:"first"`
	Surname    string      `json:"surname,omitempty" msgpack:"surname"`
	Suffix     string      `json:"suffix,omitempty" msgpack:"suffix"`
	Title      string      `json:"title,omitempty" msgpack:"title"`
	Nick       string      `json:"nick,omitempty" msgpack:"nick"`
	Type       string      `json:"type,omitempty" msgpack:"type"`
	GroupAs    string      `json:"group_as,omitempty" msgpack:"group_as"`
	Date       string      `json:"date,omitempty" msgpack:"date"`
	SourceRefs []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (n *Name) walk(add func(Kind, Handle)) {
	walkSources(n.SourceRefs, add)
	walkNotes(n.Notes, add)
}

func (n *Name) typeNames(add func(TypeSet, string)) {
	add(TypeSetNameTypes, n.Type)
}

// EventRef links a person or family to an event in some role.
type EventRef struct {
	Event      Handle      `json:"event" msgpack:"event"`
	Role       string      `json:"role,omitempty" msgpack:"role"`
	Attributes []Attribute `json:"attributes,omitempty" msgpack:"attributes"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (r *EventRef) walk(add func(Kind, Handle)) {
	add(KindEvent, r.Event)
	walkAttributes(r.Attributes, add)
	walkNotes(r.Notes, add)
}

func (r *EventRef) typeNames(add func(TypeSet, string)) {
	add(TypeSetEventRoles, r.Role)
	attributeTypes(r.Attributes, add)
}

// ChildRef links a family to one of its children.
type ChildRef struct {
	Person     Handle      `json:"person" msgpack:"person"`
	FatherRel  string      `json:"father_rel,omitempty" msgpack:"father_rel"`
	MotherRel  string      `json:"mother_rel,omitempty" msgpack:"mother_rel"`
	SourceRefs []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (r *ChildRef) walk(add func(Kind, Handle)) {
	add(KindPerson, r.Person)
	walkSources(r.SourceRefs, add)
	walkNotes(r.Notes, add)
}

// PersonRef is an association between two people, such as godfather.
type PersonRef struct {
	Person     Handle      `json:"person" msgpack:"person"`
	Relation   string      `json:"relation,omitempty" msgpack:"relation"`
	SourceRefs []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (r *PersonRef) walk(add func(Kind, Handle)) {
	add(KindPerson, r.Person)
	walkSources(r.SourceRefs, add)
	walkNotes(r.Notes, add)
}

// MediaRef attaches a media object, optionally cropped to a region.
type MediaRef struct {
	Media      Handle      `json:"media" msgpack:"media"`
	Region     [4]int      `json:"region" msgpack:"region"`
	Attributes []Attribute `json:"attributes,omitempty" msgpack:"attributes"`
	SourceRefs []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (r *MediaRef) walk(add func(Kind, Handle)) {
	add(KindMedia, r.Media)
	walkAttributes(r.Attributes, add)
	walkSources(r.SourceRefs, add)
	walkNotes(r.Notes, add)
}

// SourceRef cites a source with a page and confidence level.
type SourceRef struct {
	Source     Handle   `json:"source" msgpack:"source"`
	Page       string   `json:"page,omitempty" msgpack:"page"`
	Confidence int      `json:"confidence,omitempty" msgpack:"confidence"`
	Date       string   `json:"date,omitempty" msgpack:"date"`
	Notes      []Handle `json:"notes,omitempty" msgpack:"notes"`
}

func (r *SourceRef) walk(add func(Kind, Handle)) {
	add(KindSource, r.Source)
	walkNotes(r.Notes, add)
}

// RepoRef points from a source to a repository holding it.
type RepoRef struct {
	Repository Handle   `json:"repository" msgpack:"repository"`
	CallNumber string   `json:"call_number,omitempty" msgpack:"call_number"`
	MediaType  string   `json:"media_type,omitempty" msgpack:"media_type"`
	Notes      []Handle `json:"notes,omitempty" msgpack:"notes"`
}

func (r *RepoRef) walk(add func(Kind, Handle)) {
	add(KindRepository, r.Repository)
	walkNotes(r.Notes, add)
}

// Attribute is a typed key/value fact.
type Attribute struct {
	Type       string      `json:"type" msgpack:"type"`
	Value      string      `json:"value" msgpack:"value"`
	SourceRefs []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

// Address is a postal address with its own citations.
type Address struct {
	Street     string      `json:"street,omitempty" msgpack:"street"`
	City       string      `json:"city,omitempty" msgpack:"city"`
	County     string      `json:"county,omitempty" msgpack:"county"`
	State      string      `json:"state,omitempty" msgpack:"state"`
	Country    string      `json:"country,omitempty" msgpack:"country"`
	Postal     string      `json:"postal,omitempty" msgpack:"postal"`
	Phone      string      `json:"phone,omitempty" msgpack:"phone"`
	Date       string      `json:"date,omitempty" msgpack:"date"`
	SourceRefs []SourceRef `json:"source_refs,omitempty" msgpack:"source_refs"`
	Notes      []Handle    `json:"notes,omitempty" msgpack:"notes"`
}

func (a *Address) walk(add func(Kind, Handle)) {
	walkSources(a.SourceRefs, add)
	walkNotes(a.Notes, add)
}

// Location is the structured part of a place.
type Location struct {
	Street  string `json:"street,omitempty" msgpack:"street"`
	City    string `json:"city,omitempty" msgpack:"city"`
	Parish  string `json:"parish,omitempty" msgpack:"parish"`
	County  string `json:"county,omitempty" msgpack:"county"`
	State   string `json:"state,omitempty" msgpack:"state"`
	Country string `json:"country,omitempty" msgpack:"country"`
	Postal  string `json:"postal,omitempty" msgpack:"postal"`
}

// URL is a web link.
type URL struct {
	Path        string `json:"path" msgpack:"path"`
	Description string `json:"description,omitempty" msgpack:"description"`
	Type        string `json:"type,omitempty" msgpack:"type"`
}

func walkNotes(notes []Handle, add func(Kind, Handle)) {
	for _, h := range notes {
		add(KindNote, h)
	}
}

func walkSources(refs []SourceRef, add func(Kind, Handle)) {
	for i := range refs {
		refs[i].walk(add)
	}
}

func walkMedia(refs []MediaRef, add func(Kind, Handle)) {
	for i := range refs {
		refs[i].walk(add)
	}
}

func walkAttributes(attrs []Attribute, add func(Kind, Handle)) {
	for i := range attrs {
		walkSources(attrs[i].SourceRefs, add)
		walkNotes(attrs[i].Notes, add)
	}
}

func attributeTypes(attrs []Attribute, add func(TypeSet, string)) {
	for _, a := range attrs {
		add(TypeSetAttributeTypes, a.Type)
	}
}
