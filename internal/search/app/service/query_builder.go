package service

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/query"
)

// Weighted text fields per entity type. Titles and names outrank
// descriptions.
var (
	taskFields = []query.Field{
		{Name: "title", Boost: 3},
		{Name: "tags", Boost: 2},
		{Name: "description"},
		{Name: "projectName"},
	}
	projectFields = []query.Field{
		{Name: "name", Boost: 3},
		{Name: "tags", Boost: 2},
		{Name: "description"},
		{Name: "ownerName"},
	}
	userFields = []query.Field{
		{Name: "fullName", Boost: 3},
		{Name: "username", Boost: 3},
		{Name: "email", Boost: 2},
		{Name: "department"},
		{Name: "skills"},
		{Name: "location"},
	}
	teamFields = []query.Field{
		{Name: "name", Boost: 3},
		{Name: "description"},
		{Name: "leaderName"},
	}
)

// Fields used for prefix-style autocomplete.
var autocompleteFields = map[model.EntityType][]string{
	model.EntityTask:    {"title"},
	model.EntityProject: {"name"},
	model.EntityUser:    {"fullName", "username"},
	model.EntityTeam:    {"name"},
}

// BuildQuery combines the text clause for term with the authorization
// clause for userID. The authorization clause is derived here and never
// taken from the caller; a userID <= 0 fails closed.
func BuildQuery(entityType model.EntityType, term string, userID int64) query.Clause {
	text := textClause(entityType, term)
	b := query.NewBool().AddMust(text)
	switch entityType {
	case model.EntityTask:
		b.AddFilter(taskAccess(userID))
	case model.EntityProject:
		b.AddFilter(memberAccess("ownerId", userID))
	case model.EntityTeam:
		b.AddFilter(memberAccess("leaderId", userID))
	case model.EntityUser:
		addUserAccess(b, userID)
	default:
		return query.MatchNone{}
	}
	return b
}

// BuildAutocompleteQuery is BuildQuery with a phrase-prefix text clause.
func BuildAutocompleteQuery(entityType model.EntityType, prefix string, userID int64) query.Clause {
	prefix = normalizeTerm(prefix)
	fields := autocompleteFields[entityType]
	if prefix == "" || len(fields) == 0 {
		return BuildQuery(entityType, "", userID)
	}

	text := query.NewBool().MinShould(1)
	for i, f := range fields {
		// The first field is the display field and scores higher.
		boost := 1.0
		if i == 0 {
			boost = 2
		}
		text.AddShould(query.MatchPhrasePrefix{Field: f, Query: prefix, Boost: boost})
	}

	b := BuildQuery(entityType, "", userID)
	bq, ok := b.(*query.Bool)
	if !ok {
		return b
	}
	bq.Must = []query.Clause{text}
	return bq
}

func textClause(entityType model.EntityType, term string) query.Clause {
	term = normalizeTerm(term)
	if term == "" {
		return query.MatchAll{}
	}

	fuzzy := query.MultiMatch{
		Query:     term,
		Fields:    fieldsFor(entityType),
		Type:      "best_fields",
		Fuzziness: "AUTO",
	}

	if entityType == model.EntityUser && looksLikeEmail(term) {
		return query.AnyOf(
			query.Term{Field: "email", Value: query.String(strings.ToLower(term)), Boost: 10},
			fuzzy,
		)
	}
	if id, ok := idTerm(term); ok {
		return query.AnyOf(
			query.Term{Field: "id", Value: query.String(id), Boost: 20},
			fuzzy,
		)
	}
	return fuzzy
}

func fieldsFor(entityType model.EntityType) []query.Field {
	switch entityType {
	case model.EntityTask:
		return taskFields
	case model.EntityProject:
		return projectFields
	case model.EntityUser:
		return userFields
	case model.EntityTeam:
		return teamFields
	}
	return nil
}

// A task is visible to its creator and to every assignee.
func taskAccess(userID int64) query.Clause {
	if userID <= 0 {
		return query.MatchNone{}
	}
	u := query.Int(userID)
	return query.AnyOf(
		query.Term{Field: "creatorId", Value: u},
		query.Term{Field: "visibleToUserIds", Value: u},
		query.Term{Field: "assigneeId", Value: u},
	)
}

// Projects and teams are visible to their owner and members, and to
// everyone when public.
func memberAccess(ownerField string, userID int64) query.Clause {
	public := query.Term{Field: "privacy", Value: query.String(model.PrivacyPublic)}
	if userID <= 0 {
		return public
	}
	u := query.Int(userID)
	return query.AnyOf(
		query.Term{Field: ownerField, Value: u},
		query.Term{Field: "memberIds", Value: u},
		public,
	)
}

// Users are found only when searchable and active. PRIVATE profiles are
// visible to their owner only; without a principal only PUBLIC ones are.
func addUserAccess(b *query.Bool, userID int64) {
	b.AddFilter(query.Term{Field: "searchable", Value: query.Bool(true)})
	b.AddMustNot(query.Term{Field: "isDeactivated", Value: query.Bool(true)})

	if userID <= 0 {
		b.AddFilter(query.Term{Field: "profileVisibility", Value: query.String(string(model.ProfilePublic))})
		return
	}
	notPrivate := query.NewBool().AddMustNot(
		query.Term{Field: "profileVisibility", Value: query.String(string(model.ProfilePrivate))},
	)
	b.AddFilter(query.AnyOf(
		notPrivate,
		query.Term{Field: "id", Value: query.String(strconv.FormatInt(userID, 10))},
	))
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(term), " ")
}

func looksLikeEmail(term string) bool {
	at := strings.Index(term, "@")
	return at > 0 && strings.Contains(term[at:], ".") && !strings.ContainsAny(term, " \t")
}

// idTerm recognizes "#123" and "123".
func idTerm(term string) (string, bool) {
	digits := strings.TrimPrefix(term, "#")
	if digits == "" || len(digits) > 19 {
		return "", false
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return "", false
		}
	}
	return strings.TrimLeft(digits, "0"), strings.TrimLeft(digits, "0") != ""
}
