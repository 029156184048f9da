package query

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClauseWireFormat(t *testing.T) {
	tests := []struct {
		name   string
		clause Clause
		want   string
	}{
		{
			name:   "match all",
			clause: MatchAll{},
			want:   `{"match_all":{}}`,
		},
		{
			name:   "int term",
			clause: Term{Field: "creatorId", Value: Int(42)},
			want:   `{"term":{"creatorId":{"value":42}}}`,
		},
		{
			name:   "string term with boost",
			clause: Term{Field: "email", Value: String("a@b.io"), Boost: 10},
			want:   `{"term":{"email":{"boost":10,"value":"a@b.io"}}}`,
		},
		{
			name:   "terms",
			clause: Terms{Field: "privacy", Values: []Value{String("PUBLIC"), String("TEAM")}},
			want:   `{"terms":{"privacy":["PUBLIC","TEAM"]}}`,
		},
		{
			name: "multi match",
			clause: MultiMatch{
				Query:     "budget",
				Fields:    []Field{{Name: "title", Boost: 3}, {Name: "description"}},
				Fuzziness: "AUTO",
			},
			want: `{"multi_match":{"fields":["title^3","description"],"fuzziness":"AUTO","query":"budget"}}`,
		},
		{
			name: "bool",
			clause: NewBool().
				AddMust(MatchAll{}).
				AddFilter(AnyOf(Term{Field: "ownerId", Value: Int(7)}, Term{Field: "privacy", Value: String("PUBLIC")})).
				AddMustNot(Term{Field: "isDeactivated", Value: Bool(true)}),
			want: `{"bool":{"filter":[{"bool":{"minimum_should_match":1,"should":[{"term":{"ownerId":{"value":7}}},{"term":{"privacy":{"value":"PUBLIC"}}}]}}],"must":[{"match_all":{}}],"must_not":[{"term":{"isDeactivated":{"value":true}}}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.clause)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		clause  Clause
		wantErr bool
	}{
		{name: "nil", clause: nil, wantErr: true},
		{name: "term without value", clause: Term{Field: "ownerId"}, wantErr: true},
		{name: "term without field", clause: Term{Value: Int(1)}, wantErr: true},
		{name: "empty terms", clause: Terms{Field: "memberIds"}, wantErr: true},
		{name: "min should too high", clause: &Bool{Should: []Clause{MatchAll{}}, MinimumShouldMatch: 2}, wantErr: true},
		{name: "nested invalid", clause: NewBool().AddFilter(AnyOf(Term{Field: "x"})), wantErr: true},
		{name: "valid", clause: NewBool().AddFilter(Term{Field: "x", Value: Bool(false)}), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.clause)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidQuery))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSearchRequestMarshal(t *testing.T) {
	req := SearchRequest{
		Query: MatchAll{},
		From:  20,
		Size:  10,
		Sort:  []Sort{ByScore(), {Field: "createdAt", Desc: true}},
	}
	require.NoError(t, req.Validate())

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"query": {"match_all": {}},
		"from": 20,
		"size": 10,
		"track_total_hits": true,
		"sort": [{"_score": {"order": "desc"}}, {"createdAt": {"order": "desc"}}]
	}`, string(data))
}

func TestSearchRequestValidatePaging(t *testing.T) {
	assert.Error(t, SearchRequest{Query: MatchAll{}, From: -1, Size: 10}.Validate())
	assert.Error(t, SearchRequest{Query: MatchAll{}, Size: 0}.Validate())
}

func TestInvalidValueCannotBeEncoded(t *testing.T) {
	_, err := json.Marshal(Term{Field: "ownerId"})
	assert.Error(t, err)
}
