package media

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// countrySeparator joins the countries of a title in the country field.
const countrySeparator = ", "

// MediaTypeCount is the number of titles of one type.
type MediaTypeCount struct {
	Type  string `bson:"type" json:"type"`
	Count int64  `bson:"count" json:"count"`
}

// CountryBreakdown counts the titles of a country per media type.
type CountryBreakdown struct {
	Country    string           `bson:"_id" json:"country"`
	MediaTypes []MediaTypeCount `bson:"mediaTypes" json:"mediaTypes"`
}

// RatingCount is the number of titles of one type and rating.
type RatingCount struct {
	Type   string `json:"type"`
	Rating string `json:"rating"`
	Count  int64  `json:"count"`
}

type ratingRow struct {
	ID struct {
		Type   string `bson:"type"`
		Rating string `bson:"rating"`
	} `bson:"_id"`
	Count int64 `bson:"count"`
}

// countryPattern matches country as a whole comma separated token, ignoring
// case. Regex metacharacters in country are escaped.
func countryPattern(country string) primitive.Regex {
	return primitive.Regex{
		Pattern: `(^|,\s*)` + regexp.QuoteMeta(country) + `\s*(,|$)`,
		Options: "i",
	}
}

// countryStages narrows the collection to one row per title listing country,
// with the single country in "countries".
func countryStages(country string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: FieldCountry, Value: countryPattern(country)}}}},
		{{Key: "$addFields", Value: bson.D{{Key: "countries", Value: bson.D{
			{Key: "$split", Value: bson.A{"$" + FieldCountry, countrySeparator}},
		}}}}},
		{{Key: "$unwind", Value: "$countries"}},
		{{Key: "$match", Value: bson.D{{Key: "countries", Value: country}}}},
	}
}

// CountryBreakdownPipeline groups the titles of country by media type.
func CountryBreakdownPipeline(country string) mongo.Pipeline {
	return append(countryStages(country),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "country", Value: "$countries"}, {Key: "type", Value: "$" + FieldType}}},
			{Key: "mediaCount", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id.type", Value: 1}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.country"},
			{Key: "mediaTypes", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "type", Value: "$_id.type"},
				{Key: "count", Value: "$mediaCount"},
			}}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)
}

// RatingBreakdownPipeline counts the titles of country per type and rating.
func RatingBreakdownPipeline(country string) mongo.Pipeline {
	return append(countryStages(country),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "type", Value: "$" + FieldType}, {Key: "rating", Value: "$" + FieldRating}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id.type", Value: 1}, {Key: "_id.rating", Value: 1}}}},
	)
}
