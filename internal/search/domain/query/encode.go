package query

import "encoding/json"

// obj is only used at the serialization boundary.
type obj = map[string]any

func wrap(kind string, body any) ([]byte, error) {
	return json.Marshal(obj{kind: body})
}

func withBoost(body obj, boost float64) obj {
	if boost != 0 {
		body["boost"] = boost
	}
	return body
}

func (MatchAll) MarshalJSON() ([]byte, error)  { return wrap("match_all", obj{}) }
func (MatchNone) MarshalJSON() ([]byte, error) { return wrap("match_none", obj{}) }

func (t Term) MarshalJSON() ([]byte, error) {
	return wrap("term", obj{t.Field: withBoost(obj{"value": t.Value}, t.Boost)})
}

func (t Terms) MarshalJSON() ([]byte, error) {
	return wrap("terms", obj{t.Field: t.Values})
}

func (m Match) MarshalJSON() ([]byte, error) {
	body := withBoost(obj{"query": m.Query}, m.Boost)
	if m.Fuzziness != "" {
		body["fuzziness"] = m.Fuzziness
	}
	if m.Operator != "" {
		body["operator"] = m.Operator
	}
	return wrap("match", obj{m.Field: body})
}

func (m MultiMatch) MarshalJSON() ([]byte, error) {
	fields := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		fields[i] = f.String()
	}
	body := obj{"query": m.Query, "fields": fields}
	if m.Type != "" {
		body["type"] = m.Type
	}
	if m.Fuzziness != "" {
		body["fuzziness"] = m.Fuzziness
	}
	if m.Operator != "" {
		body["operator"] = m.Operator
	}
	return wrap("multi_match", body)
}

func (m MatchPhrasePrefix) MarshalJSON() ([]byte, error) {
	return wrap("match_phrase_prefix", obj{m.Field: withBoost(obj{"query": m.Query}, m.Boost)})
}

func (p Prefix) MarshalJSON() ([]byte, error) {
	return wrap("prefix", obj{p.Field: withBoost(obj{"value": p.Value}, p.Boost)})
}

func (e Exists) MarshalJSON() ([]byte, error) {
	return wrap("exists", obj{"field": e.Field})
}

func (b *Bool) MarshalJSON() ([]byte, error) {
	body := obj{}
	if len(b.Must) > 0 {
		body["must"] = b.Must
	}
	if len(b.Should) > 0 {
		body["should"] = b.Should
	}
	if len(b.Filter) > 0 {
		body["filter"] = b.Filter
	}
	if len(b.MustNot) > 0 {
		body["must_not"] = b.MustNot
	}
	if b.MinimumShouldMatch > 0 {
		body["minimum_should_match"] = b.MinimumShouldMatch
	}
	return wrap("bool", body)
}
