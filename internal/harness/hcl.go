package harness

import (
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// hclScenario is the HCL form of Scenario. inputs and expect are object
// attributes, decoded through their JSON form:
//
//	expect = {
//	  all_replicas = [1.0, 2.0]
//	  tolerance    = { abs = 1e-6 }
//	}
type hclScenario struct {
	Name             string    `hcl:"name"`
	Description      string    `hcl:"description,optional"`
	Replicas         int       `hcl:"replicas"`
	RunPasses        *bool     `hcl:"run_passes,optional"`
	Program          string    `hcl:"program,optional"`
	ProgramFile      string    `hcl:"program_file,optional"`
	Pairing          string    `hcl:"pairing,optional"`
	Timeout          string    `hcl:"timeout,optional"`
	DeviceAssignment []int     `hcl:"device_assignment,optional"`
	Inputs           cty.Value `hcl:"inputs,optional"`
	Expect           cty.Value `hcl:"expect,optional"`
}

// ParseHCL parses and validates an HCL scenario.
func ParseHCL(data []byte, filename string) (*Scenario, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, "failed to parse HCL")
	}
	var raw hclScenario
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, errors.Wrap(diags, "failed to decode HCL")
	}
	s := &Scenario{
		Name:             raw.Name,
		Description:      raw.Description,
		Replicas:         raw.Replicas,
		RunPasses:        raw.RunPasses,
		Program:          raw.Program,
		ProgramFile:      raw.ProgramFile,
		Pairing:          raw.Pairing,
		Timeout:          raw.Timeout,
		DeviceAssignment: raw.DeviceAssignment,
	}
	if err := decodeCty(raw.Inputs, &s.Inputs); err != nil {
		return nil, errors.WithMessage(err, "inputs")
	}
	if err := decodeCty(raw.Expect, &s.Expect); err != nil {
		return nil, errors.WithMessage(err, "expect")
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// decodeCty decodes an HCL object value into target through JSON. Absent values leave target untouched.
func decodeCty(v cty.Value, target any) error {
	if v.IsNull() {
		return nil
	}
	if !v.IsWhollyKnown() {
		return errors.New("value must be known at parse time")
	}
	doc, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return errors.Wrap(err, "converting HCL value")
	}
	return errors.Wrap(decodeJSON(doc, target), "decoding HCL value")
}
