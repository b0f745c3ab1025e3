package bootstrapper

const LogTemplateName = "logship_template"

// logIndexTemplate covers every dated shipping index. Properties stay
// unmapped-dynamic so arbitrary enrichment fields land without a template
// migration.
var logIndexTemplate = map[string]interface{}{
	"index_patterns": []string{"logship-*"},
	"template": map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
			"analysis": map[string]interface{}{
				"analyzer": map[string]interface{}{
					"message_analyzer": map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "stop"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"timestamp": map[string]interface{}{
					"type": "date",
				},
				"severity": map[string]interface{}{
					"type": "keyword",
				},
				"message": map[string]interface{}{
					"type":     "text",
					"analyzer": "message_analyzer",
				},
				"service": map[string]interface{}{
					"type": "keyword",
				},
				"trace_id": map[string]interface{}{
					"type": "keyword",
				},
				"span_id": map[string]interface{}{
					"type": "keyword",
				},
				"properties": map[string]interface{}{
					"type":    "object",
					"dynamic": true,
				},
				"exception": map[string]interface{}{
					"type":    "object",
					"enabled": true,
				},
			},
		},
	},
}
