package suggest

import "github.com/example/media-platform/services/refresher/internal/genai"

var itemSchema = genai.Schema{
	"type": "OBJECT",
	"properties": genai.Schema{
		"title":      genai.Schema{"type": "STRING", "description": "Official title as listed on TMDb."},
		"year":       genai.Schema{"type": "INTEGER", "description": "Release year."},
		"media_kind": genai.Schema{"type": "STRING", "enum": []string{"movie", "tv"}},
		"rationale":  genai.Schema{"type": "STRING", "description": "One sentence on why it fits the profile."},
	},
	"required": []string{"title", "year", "media_kind"},
}

var curatedSchema = genai.Schema{
	"type": "OBJECT",
	"properties": genai.Schema{
		"groups": genai.Schema{
			"type": "ARRAY",
			"items": genai.Schema{
				"type": "OBJECT",
				"properties": genai.Schema{
					"name":  genai.Schema{"type": "STRING", "description": "Creative group name."},
					"items": genai.Schema{"type": "ARRAY", "items": itemSchema},
				},
				"required": []string{"name", "items"},
			},
		},
	},
	"required": []string{"groups"},
}

var challengeSchema = genai.Schema{
	"type": "OBJECT",
	"properties": genai.Schema{
		"theme":     genai.Schema{"type": "STRING", "description": "Creative name of the challenge."},
		"rationale": genai.Schema{"type": "STRING", "description": "Short, playful justification."},
		"items":     genai.Schema{"type": "ARRAY", "items": itemSchema},
	},
	"required": []string{"theme", "rationale", "items"},
}

var releasesSchema = genai.Schema{
	"type": "OBJECT",
	"properties": genai.Schema{
		"picks": genai.Schema{
			"type": "ARRAY",
			"items": genai.Schema{
				"type": "OBJECT",
				"properties": genai.Schema{
					"id":         genai.Schema{"type": "INTEGER"},
					"media_kind": genai.Schema{"type": "STRING", "enum": []string{"movie", "tv"}},
					"reason":     genai.Schema{"type": "STRING", "description": "One sentence on why this release matters to the user."},
				},
				"required": []string{"id", "media_kind", "reason"},
			},
		},
	},
	"required": []string{"picks"},
}
