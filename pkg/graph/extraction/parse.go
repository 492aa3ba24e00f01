package extraction

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/graphweave/graphweave/pkg/graph"
	"github.com/graphweave/graphweave/pkg/graph/metrics"
)

const jsonFence = "```json"

// extractJSONArray locates the JSON array inside a model response. Fenced
// markdown blocks win; otherwise the slice between the first '[' and the
// last ']' is taken. The boolean is false when no array can be located.
func extractJSONArray(s string) (string, bool) {
	if start := strings.Index(s, jsonFence); start >= 0 {
		body := s[start+len(jsonFence):]
		if end := strings.Index(body, "```"); end >= 0 {
			return strings.TrimSpace(body[:end]), true
		}
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return strings.TrimSpace(s[start : end+1]), true
	}
	return "", false
}

// parsed holds the outcome of partitioning one model response.
type parsed struct {
	entities  []graph.Entity
	relations []graph.Relationship
	// badRelations counts relationship-shaped objects that failed strict
	// decoding, which almost always means a non-integer strength.
	badRelations int
}

// parseMixed parses a model response that may contain entities,
// relationships, or both in a single array. Objects are partitioned by key
// presence: a "type" key marks an entity, "source"/"target" keys mark a
// relationship. Anything else is dropped with a log line. A response with
// no parsable array yields an empty result, never an error; retrying a
// parse problem will not fix it.
func parseMixed(response string, logger *logrus.Logger) parsed {
	var out parsed

	raw, ok := extractJSONArray(response)
	if !ok {
		raw = strings.TrimSpace(response)
	}

	doc := gjson.Parse(raw)

	// Some deployments wrap the array in {"entities": [...], "relationships": [...]}.
	items := doc.Array()
	if doc.IsObject() {
		items = append(doc.Get("entities").Array(), doc.Get("relationships").Array()...)
	}
	if !doc.IsArray() && !doc.IsObject() {
		logger.WithField("response_prefix", prefix(response, 120)).Warn("Model response contained no JSON array")
		metrics.ParseDrops.WithLabelValues("no_array").Inc()
		return out
	}

	for _, item := range items {
		if !item.IsObject() {
			metrics.ParseDrops.WithLabelValues("not_object").Inc()
			continue
		}

		switch {
		case item.Get("source").Exists() && item.Get("target").Exists():
			var rel graph.Relationship
			if err := json.Unmarshal([]byte(item.Raw), &rel); err != nil {
				logger.WithError(err).WithField("object", item.Raw).Warn("Dropping undecodable relationship")
				metrics.ParseDrops.WithLabelValues("bad_relationship").Inc()
				out.badRelations++
				continue
			}
			out.relations = append(out.relations, rel)

		case item.Get("type").Exists():
			var ent graph.Entity
			if err := json.Unmarshal([]byte(item.Raw), &ent); err != nil {
				logger.WithError(err).WithField("object", item.Raw).Warn("Dropping undecodable entity")
				metrics.ParseDrops.WithLabelValues("bad_entity").Inc()
				continue
			}
			ent.Name = strings.ToUpper(ent.Name)
			out.entities = append(out.entities, ent)

		default:
			logger.WithField("object", item.Raw).Warn("Dropping object with neither entity nor relationship keys")
			metrics.ParseDrops.WithLabelValues("unknown_shape").Inc()
		}
	}

	return out
}

// validateRelationships enforces the strength invariant on a whole batch.
// One bad relationship fails all of them.
func validateRelationships(rels []graph.Relationship) error {
	for _, rel := range rels {
		if rel.Strength < 1 || rel.Strength > 10 {
			return &graph.ValidationError{
				Field:   "relationship_strength",
				Message: "relationship strength must be between 1 and 10",
			}
		}
	}
	return nil
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
