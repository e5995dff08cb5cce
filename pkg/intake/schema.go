package intake

// recordSchema is the contract for extraction collaborator output.
const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "ParcelApplication extraction record",
  "type": "object",
  "required": ["owner_name", "survey_number", "plot_area_sqm", "proposed_floors", "zone_id", "has_basement", "coordinates"],
  "properties": {
    "id":              {"type": "string"},
    "owner_name":      {"type": "string", "minLength": 1, "maxLength": 200},
    "survey_number":   {"type": "string", "minLength": 1, "maxLength": 64},
    "plot_area_sqm":   {"type": "number", "exclusiveMinimum": 0},
    "proposed_floors": {"type": "integer", "minimum": 1},
    "zone_id":         {"type": "string", "minLength": 1},
    "has_basement":    {"type": "boolean"},
    "coordinates":     {"type": "string"},
    "location":        {"type": "string"}
  }
}`

const schemaURL = "https://landguard.local/schemas/parcel-application.json"
