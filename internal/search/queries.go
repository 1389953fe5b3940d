package search

import (
	"github.com/tanagra-labs/querent/internal/domain"
)

// Scoring constants of the ranking pipeline. The +1.0 shift keeps script
// scores positive, as required by Elasticsearch.
const (
	titleBoost    = 2.0
	fulltextBoost = 1.2

	// negativeWeight discounts similarity to the exclude vector in
	// positive/negative queries.
	negativeWeight = 0.8
	// posNegMinScore is the backend-side floor for positive/negative and
	// aggregated shortlist queries.
	posNegMinScore = 1.05
	// collapseInnerSize caps the chunks returned per external id when collapsing.
	collapseInnerSize = 10

	lexicalVectorSize = 100
	vectorOnlySize    = 1000
	imageSearchSize   = 10
	shortlistSize     = 200
	chunkFetchSize    = 10000
)

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func matchBoost(field, query string, boost float64) map[string]any {
	return map[string]any{"match": map[string]any{
		field: map[string]any{"query": query, "boost": boost},
	}}
}

// visibilityFilter builds the mandatory business-visibility filter plus the
// optional scope filter. "Visible to all" is either an absent businessId or
// the literal sentinel "0".
func visibilityFilter(scope, businessID string) map[string]any {
	must := make([]any, 0, 2)
	if scope != "" {
		must = append(must, term("scope", scope))
	}
	must = append(must, map[string]any{"bool": map[string]any{
		"should": []any{
			term("businessId", businessID),
			map[string]any{"bool": map[string]any{
				"must_not": map[string]any{"exists": map[string]any{"field": "businessId"}},
			}},
			term("businessId", domain.BusinessVisibleToAll),
		},
		"minimum_should_match": 1,
	}})
	return map[string]any{"bool": map[string]any{"must": must}}
}

func cosineScript(field string, vector []float64) map[string]any {
	return map[string]any{
		"source": "cosineSimilarity(params.query_vector, '" + field + "') + 1.0",
		"params": map[string]any{"query_vector": vector},
	}
}

// posNegScript scores max(0, cos(include) - weight*cos(exclude) + 1.0)
// against the given vector field, or cos(include) + 1.0 when no exclude
// vector is given.
func posNegScript(include, exclude []float64, field string) map[string]any {
	if exclude == nil {
		return map[string]any{
			"source": "cosineSimilarity(params.include_vector, '" + field + "') + 1.0",
			"params": map[string]any{"include_vector": include},
		}
	}
	return map[string]any{
		"source": "Math.max(0, cosineSimilarity(params.include_vector, '" + field + "')" +
			" - params.negative_weight * cosineSimilarity(params.exclude_vector, '" + field + "') + 1.0)",
		"params": map[string]any{
			"include_vector":  include,
			"exclude_vector":  exclude,
			"negative_weight": negativeWeight,
		},
	}
}

func lexicalVectorQuery(vector []float64, query, scope, businessID string, field domain.VectorField) map[string]any {
	return map[string]any{
		"size": lexicalVectorSize,
		"query": map[string]any{
			"function_score": map[string]any{
				"query": map[string]any{"bool": map[string]any{
					"must": []any{map[string]any{"match_all": map[string]any{}}},
					"should": []any{
						matchBoost("title", query, titleBoost),
						matchBoost("fulltext", query, fulltextBoost),
					},
					"minimum_should_match": 1,
					"filter":               visibilityFilter(scope, businessID),
				}},
				"functions": []any{
					map[string]any{"script_score": map[string]any{"script": cosineScript(field.Name(), vector)}},
				},
				"boost_mode": "multiply",
			},
		},
	}
}

func vectorOnlyQuery(vector []float64, scope, businessID string, field domain.VectorField) map[string]any {
	return map[string]any{
		"size": vectorOnlySize,
		"query": map[string]any{"bool": map[string]any{
			"must": []any{map[string]any{"script_score": map[string]any{
				"query":  map[string]any{"match_all": map[string]any{}},
				"script": cosineScript(field.Name(), vector),
			}}},
			"filter": visibilityFilter(scope, businessID),
		}},
	}
}

func imageVectorQuery(vector []float64, scope, businessID string) map[string]any {
	filter := make([]any, 0, 2)
	if scope != "" {
		filter = append(filter, term("scope", scope))
	}
	if businessID != "" {
		filter = append(filter, term("businessId", businessID))
	}
	return map[string]any{
		"size": imageSearchSize,
		"query": map[string]any{"script_score": map[string]any{
			"query":  map[string]any{"bool": map[string]any{"filter": filter}},
			"script": cosineScript("imageVect", vector),
		}},
	}
}

func posNegCollapseQuery(
	include, exclude []float64, scope, businessID string,
	field domain.VectorField, collapse bool, size int,
) map[string]any {
	body := map[string]any{
		"size":      size,
		"min_score": posNegMinScore,
		"query": map[string]any{"script_score": map[string]any{
			"query": map[string]any{"bool": map[string]any{
				"must":   []any{map[string]any{"match_all": map[string]any{}}},
				"filter": visibilityFilter(scope, businessID),
			}},
			"script": posNegScript(include, exclude, field.Name()),
		}},
	}
	if collapse {
		body["collapse"] = map[string]any{
			"field": "externalId",
			"inner_hits": map[string]any{
				"name": "chunks",
				"size": collapseInnerSize,
				"sort": []any{map[string]any{"_score": map[string]any{"order": "desc"}}},
			},
		}
	}
	return body
}

// shortlistQuery is phase 1 of the aggregated search: a hybrid function-score
// query (lexical should-clauses plus summed vector boost) under a hard score
// floor. The floor biases which chunks are visible, which is exactly why
// phase 2 re-fetches complete groups.
func shortlistQuery(include []float64, query, scope, businessID string, field domain.VectorField) map[string]any {
	return map[string]any{
		"size":      shortlistSize,
		"min_score": posNegMinScore,
		"query": map[string]any{
			"function_score": map[string]any{
				"query": map[string]any{"bool": map[string]any{
					"must": []any{map[string]any{"match_all": map[string]any{}}},
					"should": []any{
						matchBoost("title", query, titleBoost),
						matchBoost("fulltext", query, fulltextBoost),
					},
					"minimum_should_match": 1,
					"filter":               visibilityFilter(scope, businessID),
				}},
				"functions": []any{
					map[string]any{"script_score": map[string]any{"script": cosineScript(field.Name(), include)}},
				},
				"boost_mode": "sum",
			},
		},
	}
}

// chunkFetchQuery is phase 2: every chunk of the shortlisted external ids,
// unbounded by any score floor.
func chunkFetchQuery(externalIDs []string, scope, businessID string) map[string]any {
	return map[string]any{
		"size": chunkFetchSize,
		"query": map[string]any{"bool": map[string]any{
			"must":   []any{map[string]any{"terms": map[string]any{"externalId": externalIDs}}},
			"filter": visibilityFilter(scope, businessID),
		}},
	}
}

func listQuery(scope, businessID string, size int) map[string]any {
	must := make([]any, 0, 2)
	if scope != "" {
		must = append(must, term("scope", scope))
	}
	if businessID != "" {
		must = append(must, term("businessId", businessID))
	}
	if len(must) == 0 {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}
	return map[string]any{
		"size":  size,
		"query": map[string]any{"bool": map[string]any{"must": must}},
	}
}
