package mongostore

import (
	"fmt"

	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// idFields hold ObjectIDs in the documents but travel as hex strings
var idFields = map[string]bool{
	pipeline.FieldID:    true,
	pipeline.FieldUser:  true,
	pipeline.FieldChain: true,
}

// translatePipeline converts p into an aggregation pipeline
func translatePipeline(p pipeline.Pipeline) (mongo.Pipeline, error) {
	out := make(mongo.Pipeline, 0, len(p))
	for _, st := range p {
		doc, err := translateStage(st)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func translateStage(st pipeline.Stage) (bson.D, error) {
	switch s := st.(type) {
	case pipeline.Match:
		return bson.D{{Key: "$match", Value: translateFilter(s.Filter)}}, nil
	case pipeline.GraphLookup:
		return bson.D{{Key: "$graphLookup", Value: bson.D{
			{Key: "from", Value: s.From},
			{Key: "startWith", Value: "$" + s.StartWith},
			{Key: "connectFromField", Value: s.ConnectFromField},
			{Key: "connectToField", Value: s.ConnectToField},
			{Key: "as", Value: s.As},
		}}}, nil
	case pipeline.Lookup:
		return bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: s.From},
			{Key: "localField", Value: s.LocalField},
			{Key: "foreignField", Value: s.ForeignField},
			{Key: "as", Value: s.As},
		}}}, nil
	case pipeline.Unwind:
		return bson.D{{Key: "$unwind", Value: "$" + s.Path}}, nil
	case pipeline.Project:
		fields := bson.D{}
		for _, f := range s.Fields {
			switch f.Kind {
			case pipeline.Include:
				fields = append(fields, bson.E{Key: f.Name, Value: 1})
			case pipeline.Size:
				fields = append(fields, bson.E{Key: f.Name, Value: bson.D{{Key: "$size", Value: "$" + f.Source}}})
			case pipeline.Literal:
				fields = append(fields, bson.E{Key: f.Name, Value: bson.D{{Key: "$literal", Value: f.Value}}})
			case pipeline.FieldRef:
				fields = append(fields, bson.E{Key: f.Name, Value: "$" + f.Source})
			default:
				return nil, fmt.Errorf("%w: projection kind %d", store.ErrUnsupportedPipeline, f.Kind)
			}
		}
		return bson.D{{Key: "$project", Value: fields}}, nil
	case pipeline.UnionWith:
		inner, err := translatePipeline(s.Pipeline)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$unionWith", Value: bson.D{
			{Key: "coll", Value: s.Collection},
			{Key: "pipeline", Value: inner},
		}}}, nil
	case pipeline.Count:
		return bson.D{{Key: "$count", Value: s.As}}, nil
	case pipeline.Sort:
		keys := bson.D{}
		for _, k := range s.Keys {
			dir := 1
			if k.Desc {
				dir = -1
			}
			keys = append(keys, bson.E{Key: k.Field, Value: dir})
		}
		return bson.D{{Key: "$sort", Value: keys}}, nil
	case pipeline.Skip:
		return bson.D{{Key: "$skip", Value: s.N}}, nil
	case pipeline.Limit:
		return bson.D{{Key: "$limit", Value: s.N}}, nil
	default:
		return nil, fmt.Errorf("%w: stage %T", store.ErrUnsupportedPipeline, st)
	}
}

// translateFilter converts f into a query document. nil matches everything.
func translateFilter(f pipeline.Filter) bson.D {
	switch v := f.(type) {
	case pipeline.Eq:
		return bson.D{{Key: v.Field, Value: idValue(v.Field, v.Value)}}
	case pipeline.SizeEq:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$size", Value: v.N}}}}
	case pipeline.SizeLt:
		return bson.D{{Key: "$expr", Value: bson.D{{Key: "$lt", Value: bson.A{
			bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + v.Field, bson.A{}}}}}},
			v.N,
		}}}}}
	case pipeline.And:
		parts := bson.A{}
		for _, inner := range v {
			parts = append(parts, translateFilter(inner))
		}
		if len(parts) == 0 {
			return bson.D{}
		}
		return bson.D{{Key: "$and", Value: parts}}
	default:
		return bson.D{}
	}
}

// idValue turns hex strings into ObjectIDs for id fields. Strings that are
// not ObjectIDs stay strings and so match nothing.
func idValue(field string, value interface{}) interface{} {
	s, ok := value.(string)
	if !ok || !idFields[field] {
		return value
	}
	if oid, err := primitive.ObjectIDFromHex(s); err == nil {
		return oid
	}
	return s
}
