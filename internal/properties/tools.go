package properties

import (
	"context"

	"propchat-backend/internal/llm"
)

// SearchTool exposes listing search to the model. Results are trimmed to the
// fields useful in a reply; descriptions and amenities would bloat the
// context without improving answers.
type SearchTool struct {
	store *Store
}

func NewSearchTool(store *Store) *SearchTool {
	return &SearchTool{store: store}
}

func (t *SearchTool) Name() string { return "get_properties" }

func (t *SearchTool) Definition() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        "get_properties",
			Description: "Search available property listings. All filters are optional; omit a filter to ignore it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{
						"type":        "string",
						"description": "Property type, e.g. 'house' or 'apartment'",
					},
					"city": map[string]any{
						"type":        "string",
						"description": "City to search in",
					},
					"max_price": map[string]any{
						"type":        "number",
						"description": "Maximum monthly price",
					},
					"bedrooms": map[string]any{
						"type":        "number",
						"description": "Minimum number of bedrooms",
					},
				},
			},
		},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	filters := SearchFilters{
		Type:     stringArg(args, "type"),
		City:     stringArg(args, "city"),
		MaxPrice: numberArg(args, "max_price"),
		Bedrooms: int(numberArg(args, "bedrooms")),
	}

	listings, err := t.store.Search(ctx, filters)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, len(listings))
	for _, p := range listings {
		results = append(results, map[string]any{
			"id":        p.ID.String(),
			"title":     p.Title,
			"type":      p.Type,
			"city":      p.City,
			"price":     p.Price,
			"bedrooms":  p.Bedrooms,
			"bathrooms": p.Bathrooms,
		})
	}
	return results, nil
}

// LocationsTool lets the model answer "where do you have listings" without
// guessing city names.
type LocationsTool struct {
	store *Store
}

func NewLocationsTool(store *Store) *LocationsTool {
	return &LocationsTool{store: store}
}

func (t *LocationsTool) Name() string { return "get_locations" }

func (t *LocationsTool) Definition() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        "get_locations",
			Description: "List the cities that currently have available property listings.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

func (t *LocationsTool) Execute(ctx context.Context, _ map[string]any) (any, error) {
	return t.store.Locations(ctx)
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func numberArg(args map[string]any, key string) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return 0
}
