// Package intake validates extraction collaborator records and turns them
// into ParcelApplications.
//
// A record passes three gates in order: the JSON schema, Unicode
// normalisation of free text, and the CEL business rules.
package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
)

// ErrInvalidRecord wraps every rejection.
var ErrInvalidRecord = errors.New("invalid extraction record")

// Rule is a named CEL predicate over the variable "record". A record fails
// the rule when the expression evaluates to false.
type Rule struct {
	Name       string
	Expression string
	Message    string
}

// DefaultRules are the business rules applied to every record.
var DefaultRules = []Rule{
	{
		Name:       "positive_area",
		Expression: `record.plot_area_sqm > 0.0`,
		Message:    "plot area must be positive",
	},
	{
		Name:       "positive_floors",
		Expression: `record.proposed_floors > 0`,
		Message:    "proposed floors must be positive",
	},
	{
		Name:       "owner_present",
		Expression: `size(record.owner_name) > 0`,
		Message:    "owner name is required",
	},
	{
		Name:       "survey_format",
		Expression: `record.survey_number.matches('^SY/[0-9]{4}/[0-9]{1,6}$')`,
		Message:    "survey number must look like SY/<year>/<number>",
	},
	{
		Name:       "coordinates_format",
		Expression: `record.coordinates == '' ||
			record.coordinates.matches('^-?[0-9]{1,2}(\\.[0-9]+)?,\\s*-?[0-9]{1,3}(\\.[0-9]+)?$') ||
			record.coordinates.matches('^[0-9]{1,2}(\\.[0-9]+)?°?\\s*[NSns],\\s*[0-9]{1,3}(\\.[0-9]+)?°?\\s*[EWew]$')`,
		Message: "coordinates must be \"lat, lon\" or \"lat° N, lon° E\"",
	},
}

// ValidationError lists every failed rule of a record.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRecord, strings.Join(e.Problems, "; "))
}

// Is makes errors.Is(err, ErrInvalidRecord) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// Validator checks records. It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
	rules  []compiledRule
}

// NewValidator compiles the record schema and the given rules. With no rules
// DefaultRules are used.
func NewValidator(rules ...Rule) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("intake: add schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("intake: compile schema: %w", err)
	}

	if len(rules) == 0 {
		rules = DefaultRules
	}
	env, err := cel.NewEnv(cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("intake: CEL env: %w", err)
	}
	v := &Validator{schema: schema}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("intake: rule %s: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("intake: rule %s: %w", r.Name, err)
		}
		v.rules = append(v.rules, compiledRule{Rule: r, prg: prg})
	}
	return v, nil
}

// Decode validates a raw extraction record and returns the application.
func (v *Validator) Decode(data []byte) (contracts.ParcelApplication, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return contracts.ParcelApplication{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return contracts.ParcelApplication{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var app contracts.ParcelApplication
	if err := json.Unmarshal(data, &app); err != nil {
		return contracts.ParcelApplication{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	app = Normalize(app)

	if err := v.Check(app); err != nil {
		return contracts.ParcelApplication{}, err
	}
	return app, nil
}

// Check applies the business rules to an already decoded application.
func (v *Validator) Check(app contracts.ParcelApplication) error {
	activation := map[string]any{
		"record": map[string]any{
			"id":              app.ID,
			"owner_name":      app.OwnerName,
			"survey_number":   app.SurveyNumber,
			"plot_area_sqm":   app.PlotAreaSqm,
			"proposed_floors": int64(app.ProposedFloors),
			"zone_id":         app.ZoneID,
			"has_basement":    app.HasBasement,
			"coordinates":     app.Coordinates,
			"location":        app.Location,
		},
	}

	var problems []string
	for _, r := range v.rules {
		out, _, err := r.prg.Eval(activation)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", r.Name, err))
			continue
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			problems = append(problems, r.Message)
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Normalize trims free text and converts it to Unicode NFC so that visually
// identical owner names and survey numbers compare equal.
func Normalize(app contracts.ParcelApplication) contracts.ParcelApplication {
	clean := func(s string) string { return strings.TrimSpace(norm.NFC.String(s)) }
	app.ID = clean(app.ID)
	app.OwnerName = clean(app.OwnerName)
	app.SurveyNumber = strings.ToUpper(clean(app.SurveyNumber))
	app.ZoneID = clean(app.ZoneID)
	app.Coordinates = clean(app.Coordinates)
	app.Location = clean(app.Location)
	return app
}
