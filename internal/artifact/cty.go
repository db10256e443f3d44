package artifact

import (
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"
)

// CtyValue converts the artifact to its HCL-visible representation. Scalars
// surface as plain strings so they compose in string templates; path-bearing
// artifacts surface as objects so expressions can reach `.path`.
func (a Artifact) CtyValue() cty.Value {
	switch a.Kind {
	case KindScalar:
		return cty.StringVal(a.Value)
	case KindFileGroup:
		sidecars := cty.ListValEmpty(cty.String)
		if len(a.Sidecars) > 0 {
			vals := make([]cty.Value, len(a.Sidecars))
			for i, s := range a.Sidecars {
				vals[i] = cty.StringVal(s)
			}
			sidecars = cty.ListVal(vals)
		}
		return cty.ObjectVal(map[string]cty.Value{
			"kind":     cty.StringVal(string(a.Kind)),
			"path":     cty.StringVal(a.Path),
			"sidecars": sidecars,
		})
	default:
		return cty.ObjectVal(map[string]cty.Value{
			"kind": cty.StringVal(string(a.Kind)),
			"path": cty.StringVal(a.Path),
		})
	}
}

// FromCty reconstructs an artifact from an evaluated HCL value. Any plain
// string (including interpolation results) becomes a scalar.
func FromCty(v cty.Value) (Artifact, error) {
	if v.IsNull() || !v.IsKnown() {
		return Artifact{}, fmt.Errorf("cannot bind null value to an artifact")
	}

	if v.Type() == cty.String {
		return Scalar(v.AsString()), nil
	}
	if v.Type() == cty.Number {
		return Scalar(v.AsBigFloat().Text('f', -1)), nil
	}
	if v.Type() == cty.Bool {
		return Scalar(strconv.FormatBool(v.True())), nil
	}

	ty := v.Type()
	if !ty.IsObjectType() || !ty.HasAttribute("kind") || !ty.HasAttribute("path") {
		return Artifact{}, fmt.Errorf("value of type %s is not an artifact", ty.FriendlyName())
	}

	kindVal := v.GetAttr("kind")
	pathVal := v.GetAttr("path")
	if kindVal.Type() != cty.String || kindVal.IsNull() ||
		pathVal.Type() != cty.String || pathVal.IsNull() {
		return Artifact{}, fmt.Errorf("value of type %s is not an artifact", ty.FriendlyName())
	}

	kind, err := ParseKind(kindVal.AsString())
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{Kind: kind, Path: pathVal.AsString()}
	if kind == KindFileGroup && ty.HasAttribute("sidecars") {
		sidecars := v.GetAttr("sidecars")
		if sidecars.IsNull() || !sidecars.CanIterateElements() {
			return Artifact{}, fmt.Errorf("filegroup sidecars of type %s are not a string list", sidecars.Type().FriendlyName())
		}
		for it := sidecars.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			if elem.Type() != cty.String || elem.IsNull() {
				return Artifact{}, fmt.Errorf("filegroup sidecar entries must be strings, got %s", elem.Type().FriendlyName())
			}
			a.Sidecars = append(a.Sidecars, elem.AsString())
		}
	}
	return a, nil
}
