package harness

import (
	"encoding/json"
	"sync"

	_ "embed"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/pkg/errors"
)

//go:embed schema.cue
var schemaSource string

// cueSchema holds the compiled #Scenario definition. CUE values can only be
// unified with values of the same context, so the context is kept with it.
type cueSchema struct {
	mu       sync.Mutex
	ctx      *cue.Context
	scenario cue.Value
}

var loadSchema = sync.OnceValues(func() (*cueSchema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, errors.Wrap(err, "compiling scenario schema")
	}
	def := v.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return nil, errors.Wrap(err, "scenario schema has no #Scenario")
	}
	return &cueSchema{ctx: ctx, scenario: def}, nil
})

// check unifies a CUE-compatible document with #Scenario and requires a concrete result.
func (s *cueSchema) check(doc []byte, filename string) (cue.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.ctx.CompileBytes(doc, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return cue.Value{}, schemaError(err)
	}
	unified := s.scenario.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, schemaError(err)
	}
	return unified, nil
}

func schemaError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return errors.Wrap(err, "scenario does not match schema")
	}
	msg := cueerrors.Details(list[0], nil)
	if len(list) > 1 {
		return errors.Errorf("scenario does not match schema: %s (and %d more errors)", msg, len(list)-1)
	}
	return errors.Errorf("scenario does not match schema: %s", msg)
}

// Validate checks s against the #Scenario schema and the rules the schema
// cannot express.
func Validate(s *Scenario) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding scenario")
	}
	if _, err := schema.check(doc, "scenario.json"); err != nil {
		return err
	}
	if (s.Program == "") == (s.ProgramFile == "") {
		return errors.Errorf("scenario %s: exactly one of program and program_file must be set", s.Name)
	}
	if in := s.Inputs; in != nil && in.AllReplicas != nil && in.PerReplica != nil {
		return errors.Errorf("scenario %s: inputs: all_replicas and per_replica are exclusive", s.Name)
	}
	if ex := s.Expect; ex != nil && ex.AllReplicas != nil && ex.PerReplica != nil {
		return errors.Errorf("scenario %s: expect: all_replicas and per_replica are exclusive", s.Name)
	}
	return nil
}

// ParseCUE parses and validates a CUE scenario. The file holds the scenario
// fields at the top level.
func ParseCUE(data []byte, filename string) (*Scenario, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	v, err := schema.check(data, filename)
	if err != nil {
		return nil, err
	}
	doc, err := v.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "exporting CUE scenario")
	}
	var s Scenario
	if err := decodeJSON(doc, &s); err != nil {
		return nil, errors.Wrap(err, "decoding CUE scenario")
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
