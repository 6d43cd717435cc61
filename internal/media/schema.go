// Package media is the title catalog: the title document type, the
// country aggregations over it and their HTTP routes.
package media

import "github.com/nellyolofsson/wt2/internal/document"

// Field names of a title.
const (
	FieldShowID      = "show_id"
	FieldType        = "type"
	FieldTitle       = "title"
	FieldDirector    = "director"
	FieldCast        = "cast"
	FieldCountry     = "country"
	FieldDateAdded   = "date_added"
	FieldReleaseYear = "releaseYear"
	FieldRating      = "rating"
	FieldDuration    = "duration"
	FieldListedIn    = "listed_in"
	FieldDescription = "description"
)

// TitleSchema describes a movie or TV show of the catalog.
var TitleSchema = document.MustSchema("Title", []document.Field{
	{Name: FieldShowID, Type: document.String, Required: true},
	{Name: FieldType, Type: document.String, Required: true},
	{Name: FieldTitle, Type: document.String, Required: true, Unique: true},
	{Name: FieldDirector, Type: document.String},
	{Name: FieldCast, Type: document.String},
	{Name: FieldCountry, Type: document.String},
	{Name: FieldDateAdded, Type: document.Date},
	{Name: FieldReleaseYear, Type: document.Number},
	{Name: FieldRating, Type: document.String},
	{Name: FieldDuration, Type: document.String},
	{Name: FieldListedIn, Type: document.String},
	{Name: FieldDescription, Type: document.String},
}, document.WithOptimisticConcurrency(document.DefaultVersionKey))
