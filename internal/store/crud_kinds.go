package store

import (
	"context"
	"iter"
	"time"

	"github.com/roach88/kinstore/internal/record"
)

// Typed accessors for each record kind. They wrap the generic Get, GetByID,
// Add, CommitRecord, Remove and Handles.

// GetPerson returns a person by handle.
func (s *Store) GetPerson(ctx context.Context, h record.Handle) (*record.Person, error) {
	return getAs[*record.Person](ctx, s, record.KindPerson, h)
}

// GetPersonByID returns a person by human id.
func (s *Store) GetPersonByID(ctx context.Context, id string) (*record.Person, error) {
	return getByIDAs[*record.Person](ctx, s, record.KindPerson, id)
}

func (s *Store) AddPerson(ctx context.Context, txn *Transaction, p *record.Person) (record.Handle, error) {
	return s.Add(ctx, txn, p)
}

func (s *Store) CommitPerson(ctx context.Context, txn *Transaction, p *record.Person, changeTime time.Time) error {
	return s.CommitRecord(ctx, txn, p, changeTime)
}

func (s *Store) RemovePerson(ctx context.Context, txn *Transaction, h record.Handle) error {
	return s.Remove(ctx, txn, record.KindPerson, h)
}

func (s *Store) PersonHandles(ctx context.Context) iter.Seq2[record.Handle, error] {
	return s.Handles(ctx, record.KindPerson)
}

// GetFamily returns a family by handle.
func (s *Store) GetFamily(ctx context.Context, h record.Handle) (*record.Family, error) {
	return getAs[*record.Family](ctx, s, record.KindFamily, h)
}

// GetFamilyByID returns a family by human id.
func (s *Store) GetFamilyByID(ctx context.Context, id string) (*record.Family, error) {
	return getByIDAs[*record.Family](ctx, s, record.KindFamily, id)
}

func (s *Store) AddFamily(ctx context.Context, txn *Transaction, f *record.Family) (record.Handle, error) {
	return s.Add(ctx, txn, f)
}

func (s *Store) CommitFamily(ctx context.Context, txn *Transaction, f *record.Family, changeTime time.Time) error {
	return s.CommitRecord(ctx, txn, f, changeTime)
}

func (s *Store) RemoveFamily(ctx context.Context, txn *Transaction, h record.Handle) error {
	return s.Remove(ctx, txn, record.KindFamily, h)
}

func (s *Store) FamilyHandles(ctx context.Context) iter.Seq2[record.Handle, error] {
	return s.Handles(ctx, record.KindFamily)
}

// GetEvent returns an event by handle.
func (s *Store) GetEvent(ctx context.Context, h record.Handle) (*record.Event, error) {
	return getAs[*record.Event](ctx, s, record.KindEvent, h)
}

// GetEventByID returns an event by human id.
func (s *Store) GetEventByID(ctx context.Context, id string) (*record.Event, error) {
	return getByIDAs[*record.Event](ctx, s, record.KindEvent, id)
}

func (s *Store) AddEvent(ctx context.Context, txn *Transaction, e *record.Event) (record.Handle, error) {
	return s.Add(ctx, txn, e)
}

func (s *Store) CommitEvent(ctx context.Context, txn *Transaction, e *record.Event, changeTime time.Time) error {
	return s.CommitRecord(ctx, txn, e, changeTime)
}

func (s *Store) RemoveEvent(ctx context.Context, txn *Transaction, h record.Handle) error {
	return s.Remove(ctx, txn, record.KindEvent, h)
}

func (s *Store) EventHandles(ctx context.Context) iter.Seq2[record.Handle, error] {
	return s.Handles(ctx, record.KindEvent)
}

// GetPlace returns a place by handle.
func (s *Store) GetPlace(ctx context.Context, h record.Handle) (*record.Place, error) {
	return getAs[*record.Place](ctx, s, record.KindPlace, h)
}

// GetPlaceByID returns a place by human id.
func (s *Store) GetPlaceByID(ctx context.Context, id string) (*record.Place, error) {
	return getByIDAs[*record.Place](ctx, s, record.KindPlace, id)
}

func (s *Store) AddPlace(ctx context.Context, txn *Transaction, p *record.Place) (record.Handle, error) {
	return s.Add(ctx, txn, p)
}

func (s *Store) CommitPlace(ctx context.Context, txn *Transaction, p *record.Place, changeTime time.Time) error {
	return s.CommitRecord(ctx, txn, p, changeTime)
}

func (s *Store) RemovePlace(ctx context.Context, txn *Transaction, h record.Handle) error {
	return s.Remove(ctx, txn, record.KindPlace, h)
}

func (s *Store) PlaceHandles(ctx context.Context) iter.Seq2[record.Handle, error] {
	return s.Handles(ctx, record.KindPlace)
}

// GetSource returns a source by handle.
func (s *Store) GetSource(ctx context.Context, h record.Handle) (*record.Source, error) {
	return getAs[*record.Source](ctx, s, record.KindSource, h)
}

// GetSourceByID returns a source by human id.
func (s *Store) GetSourceByID(ctx context.Context, id string) (*record.Source, error) {
	return getByIDAs[*record.Source](ctx, s, record.KindSource, id)
}

func (s *Store) AddSource(ctx context.Context, txn *Transaction, src *record.Source) (record.Handle, error) {
	return s.Add(ctx, txn, src)
}

func (s *Store) CommitSource(ctx context.Context, txn *Transaction, src *record.Source, changeTime time.Time) error {
	return s.CommitRecord(ctx, txn, src, changeTime)
}

func (s *Store) RemoveSource(ctx context.Context, txn *Transaction, h record.Handle) error {
	return s.Remove(ctx, txn, record.KindSource, h)
}

func (s *Store) SourceHandles(ctx context.Context) iter.Seq2[record.Handle, error] {
	return s.Handles(ctx, record.KindSource)
}

// GetMedia returns a media object by handle.
func (s *Store) GetMedia(ctx context.Context, h record.Handle) (*record.Media, error) {
	return getAs[*record.Media](ctx, s, record.KindMedia, h)
}

// GetMediaByID returns a media object by human id.
func (s *Store) GetMediaByID(ctx context.Context, id string) (*record.Media, error) {
	return getByIDAs[*record.Media](ctx, s, record.KindMedia, id)
}

func (s *Store) AddMedia(ctx context.Context, txn *Transaction, m *record.Media) (record.Handle, error) {
	return s.Add(ctx, txn, m)
}

func (s *Store) CommitMedia(ctx context.Context, txn *Transaction, m *record.Media, changeTime time.Time) error {
	return s.CommitRecord(ctx, txn, m, changeTime)
}

func (s *Store) RemoveMedia(ctx context.Context, txn *Transaction, h record.Handle) error {
	return s.Remove(ctx, txn, record.KindMedia, h)
}

func (s *Store) MediaHandles(ctx context.Context) iter.Seq2[record.Handle, error] {
	return s.Handles(ctx, record.KindMedia)
}

// GetRepository returns a repository by handle.
func (s *Store) GetRepository(ctx context.Context, h record.Handle) (*record.Repository, error) {
	return getAs[*record.Repository](ctx, s, record.KindRepository, h)
}

// GetRepositoryByID returns a repository by human id.
func (s *Store) GetRepositoryByID(ctx context.Context, id string) (*record.Repository, error) {
	return getByIDAs[*record.Repository](ctx, s, record.KindRepository, id)
}

func (s *Store) AddRepository(ctx context.Context, txn *Transaction, r *record.Repository) (record.Handle, error) {
	return s.Add(ctx, txn, r)
}

func (s *Store) CommitRepository(ctx context.Context, txn *Transaction, r *record.Repository, changeTime time.Time) error {
	return s.CommitRecord(ctx, txn, r, changeTime)
}

func (s *Store) RemoveRepository(ctx context.Context, txn *Transaction, h record.Handle) error {
	return s.Remove(ctx, txn, record.KindRepository, h)
}

func (s *Store) RepositoryHandles(ctx context.Context) iter.Seq2[record.Handle, error] {
	return s.Handles(ctx, record.KindRepository)
}

// GetNote returns a note by handle.
func (s *Store) GetNote(ctx context.Context, h record.Handle) (*record.Note, error) {
	return getAs[*record.Note](ctx, s, record.KindNote, h)
}

// GetNoteByID returns a note by human id.
func (s *Store) GetNoteByID(ctx context.Context, id string) (*record.Note, error) {
	return getByIDAs[*record.Note](ctx, s, record.KindNote, id)
}

func (s *Store) AddNote(ctx context.Context, txn *Transaction, n *record.Note) (record.Handle, error) {
	return s.Add(ctx, txn, n)
}

func (s *Store) CommitNote(ctx context.Context, txn *Transaction, n *record.Note, changeTime time.Time) error {
	return s.CommitRecord(ctx, txn, n, changeTime)
}

func (s *Store) RemoveNote(ctx context.Context, txn *Transaction, h record.Handle) error {
	return s.Remove(ctx, txn, record.KindNote, h)
}

func (s *Store) NoteHandles(ctx context.Context) iter.Seq2[record.Handle, error] {
	return s.Handles(ctx, record.KindNote)
}
