package engine

import (
	"fmt"
	"math"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/meshqual/pkg/blockmesh"
	"github.com/chazu/meshqual/pkg/kernel"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms case-file source before passing it to
// zygomys. It performs three transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: inlet-duct -> inlet_duct
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
//  3. Line comments: ; and ;; become //, which is what zygomys parses.
//
// All transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a point or direction.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpBlock carries a block recipe from `block` to `shear` and `region`.
type sexpBlock struct {
	recipe *BlockRecipe
}

func (b *sexpBlock) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s)", b.recipe)
}
func (b *sexpBlock) Type() *zygo.RegisteredType { return nil }

// sexpSolid wraps a kernel solid.
type sexpSolid struct {
	solid kernel.Solid
	desc  string
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(solid %s)", s.desc)
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

// sexpCastellated carries a castellation recipe to `region`.
type sexpCastellated struct {
	recipe *CastellateRecipe
}

func (c *sexpCastellated) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s)", c.recipe)
}
func (c *sexpCastellated) Type() *zygo.RegisteredType { return nil }

// sexpRegion is returned by `region`.
type sexpRegion struct {
	region *Region
}

func (r *sexpRegion) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(region %q %s)", r.region.Name, r.region.Recipe)
}
func (r *sexpRegion) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	builtin    string
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(builtin string, args []zygo.Sexp) kwArgs {
	result := kwArgs{builtin: builtin, kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// number returns keyword key as a float64, or def when absent.
func (a kwArgs) number(key string, def float64) (float64, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", a.builtin, key, err)
	}
	return f, nil
}

// positive returns a required keyword that must be a positive number.
func (a kwArgs) positive(key string) (float64, error) {
	if _, ok := a.kw[key]; !ok {
		return 0, fmt.Errorf("%s: :%s is required", a.builtin, key)
	}
	f, err := a.number(key, 0)
	if err != nil {
		return 0, err
	}
	if !(f > 0) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %s must be positive, got %g", a.builtin, key, f)
	}
	return f, nil
}

// vec returns keyword key as a vector; required keywords fail when absent.
func (a kwArgs) vec(key string, required bool) (v3.Vec, bool, error) {
	v, ok := a.kw[key]
	if !ok {
		if required {
			return v3.Vec{}, false, fmt.Errorf("%s: :%s is required", a.builtin, key)
		}
		return v3.Vec{}, false, nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return v3.Vec{}, false, fmt.Errorf("%s: %s: %w", a.builtin, key, err)
	}
	return vec, true, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toAxis converts a keyword or string to a blockmesh.Axis.
func toAxis(s zygo.Sexp) (blockmesh.Axis, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected axis keyword (:x, :y, :z): %w", err)
	}
	switch name {
	case "x":
		return blockmesh.AxisX, nil
	case "y":
		return blockmesh.AxisY, nil
	case "z":
		return blockmesh.AxisZ, nil
	}
	return 0, fmt.Errorf("invalid axis %q, expected x, y, or z", name)
}

// toVec3 extracts a vector from a sexpVec3.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toSolid extracts a kernel solid from a sexpSolid.
func toSolid(s zygo.Sexp) (*sexpSolid, error) {
	if v, ok := s.(*sexpSolid); ok {
		return v, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

// toCells reads per-axis cell counts from a vec3 or a list of three
// integers. Every count must be a whole number of at least 1.
func toCells(s zygo.Sexp) ([3]int, error) {
	var raw [3]float64
	if v, ok := s.(*sexpVec3); ok {
		raw = [3]float64{v.vec.X, v.vec.Y, v.vec.Z}
	} else {
		items, err := sexpListToSlice(s)
		if err != nil {
			return [3]int{}, fmt.Errorf("expected vec3 or list of 3 counts: %w", err)
		}
		if len(items) != 3 {
			return [3]int{}, fmt.Errorf("expected 3 cell counts, got %d", len(items))
		}
		for i, item := range items {
			f, err := toFloat64(item)
			if err != nil {
				return [3]int{}, err
			}
			raw[i] = f
		}
	}
	var cells [3]int
	for i, f := range raw {
		if f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
			return [3]int{}, fmt.Errorf("cell count %g must be a whole number of at least 1", f)
		}
		cells[i] = int(f)
	}
	return cells, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// twoSolids reads the operands of a boolean builtin.
func twoSolids(builtin string, args []zygo.Sexp) (a, b *sexpSolid, err error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("%s requires exactly 2 solids, got %d arguments", builtin, len(args))
	}
	if a, err = toSolid(args[0]); err != nil {
		return nil, nil, fmt.Errorf("%s: first operand: %w", builtin, err)
	}
	if b, err = toSolid(args[1]); err != nil {
		return nil, nil, fmt.Errorf("%s: second operand: %w", builtin, err)
	}
	return a, b, nil
}

// solidAndVec reads the (solid vec3) arguments of a transform builtin.
func solidAndVec(builtin string, args []zygo.Sexp) (*sexpSolid, v3.Vec, error) {
	if len(args) != 2 {
		return nil, v3.Vec{}, fmt.Errorf("%s requires a solid and a vec3, got %d arguments", builtin, len(args))
	}
	s, err := toSolid(args[0])
	if err != nil {
		return nil, v3.Vec{}, fmt.Errorf("%s: %w", builtin, err)
	}
	v, err := toVec3(args[1])
	if err != nil {
		return nil, v3.Vec{}, fmt.Errorf("%s: %w", builtin, err)
	}
	return s, v, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the case DSL into a zygomys environment. Solids
// are built through k and regions are recorded in c.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, k kernel.Kernel, c *Case) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (block :min (vec3 0 0 0) :max (vec3 1 1 1) :cells (vec3 4 4 4)
	//        :grading (vec3 1 2 1))
	// -----------------------------------------------------------------------
	env.AddFunction("block", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("block", args)
		var blk blockmesh.Block
		var err error

		if blk.Min, _, err = pa.vec("min", false); err != nil {
			return zygo.SexpNull, err
		}
		if blk.Max, _, err = pa.vec("max", true); err != nil {
			return zygo.SexpNull, err
		}
		v, ok := pa.kw["cells"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("block: :cells is required")
		}
		if blk.Cells, err = toCells(v); err != nil {
			return zygo.SexpNull, fmt.Errorf("block: cells: %w", err)
		}
		grading, ok, err := pa.vec("grading", false)
		if err != nil {
			return zygo.SexpNull, err
		}
		if ok {
			blk.Grading = [3]float64{grading.X, grading.Y, grading.Z}
		}

		// Generate validates the block too; failing here reports the line.
		for a := blockmesh.AxisX; a <= blockmesh.AxisZ; a++ {
			if blk.Grading[a] < 0 {
				return zygo.SexpNull, fmt.Errorf("block: %s grading must not be negative", a)
			}
		}
		if !(blk.Max.X > blk.Min.X && blk.Max.Y > blk.Min.Y && blk.Max.Z > blk.Min.Z) {
			return zygo.SexpNull, fmt.Errorf("block: max %v must exceed min %v on every axis", blk.Max, blk.Min)
		}
		return &sexpBlock{recipe: &BlockRecipe{Block: blk}}, nil
	})

	// -----------------------------------------------------------------------
	// (shear blk :axis :x :offset (vec3 0 0.5 0) :from 0.5)
	// -----------------------------------------------------------------------
	env.AddFunction("shear", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("shear", args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("shear requires a block as its first argument")
		}
		b, ok := pa.positional[0].(*sexpBlock)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("shear: expected block, got %T (%s)", pa.positional[0], pa.positional[0].SexpString(nil))
		}
		axis := blockmesh.AxisX
		if v, ok := pa.kw["axis"]; ok {
			a, err := toAxis(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("shear: axis: %w", err)
			}
			axis = a
		}
		offset, _, err := pa.vec("offset", true)
		if err != nil {
			return zygo.SexpNull, err
		}
		from, err := pa.number("from", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		if from < 0 || from >= 1 {
			return zygo.SexpNull, fmt.Errorf("shear: from must lie in [0, 1), got %g", from)
		}
		fn := b.recipe.Block.Shear(axis, offset, from)
		return &sexpBlock{recipe: b.recipe.with(fn)}, nil
	})

	// -----------------------------------------------------------------------
	// Solids: (box :size v) (cylinder :height h :radius r) (sphere :radius r)
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("box", args)
		size, _, err := pa.vec("size", true)
		if err != nil {
			return zygo.SexpNull, err
		}
		if !(size.X > 0 && size.Y > 0 && size.Z > 0) {
			return zygo.SexpNull, fmt.Errorf("box: size %v must be positive on every axis", size)
		}
		return &sexpSolid{
			solid: k.Box(size.X, size.Y, size.Z),
			desc:  fmt.Sprintf("box %gx%gx%g", size.X, size.Y, size.Z),
		}, nil
	})

	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("cylinder", args)
		h, err := pa.positive("height")
		if err != nil {
			return zygo.SexpNull, err
		}
		r, err := pa.positive("radius")
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{solid: k.Cylinder(h, r, 0), desc: fmt.Sprintf("cylinder h=%g r=%g", h, r)}, nil
	})

	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("sphere", args)
		r, err := pa.positive("radius")
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{solid: k.Sphere(r), desc: fmt.Sprintf("sphere r=%g", r)}, nil
	})

	// -----------------------------------------------------------------------
	// Booleans: (union a b) (difference a b) (intersection a b)
	// -----------------------------------------------------------------------
	booleans := map[string]func(a, b kernel.Solid) kernel.Solid{
		"union":        k.Union,
		"difference":   k.Difference,
		"intersection": k.Intersection,
	}
	for opName, op := range booleans {
		opName, op := opName, op
		env.AddFunction(opName, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			a, b, err := twoSolids(opName, args)
			if err != nil {
				return zygo.SexpNull, err
			}
			return &sexpSolid{
				solid: op(a.solid, b.solid),
				desc:  fmt.Sprintf("%s(%s, %s)", opName, a.desc, b.desc),
			}, nil
		})
	}

	// -----------------------------------------------------------------------
	// Transforms: (translate s (vec3 ...)) (rotate s (vec3 ...)) in degrees
	// -----------------------------------------------------------------------
	env.AddFunction("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, v, err := solidAndVec("translate", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{solid: k.Translate(s.solid, v.X, v.Y, v.Z), desc: s.desc}, nil
	})

	env.AddFunction("rotate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, v, err := solidAndVec("rotate", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{solid: k.Rotate(s.solid, v.X, v.Y, v.Z), desc: s.desc}, nil
	})

	// -----------------------------------------------------------------------
	// (castellate solid :cells (vec3 8 8 8) :padding 0.1)
	// -----------------------------------------------------------------------
	env.AddFunction("castellate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("castellate", args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("castellate requires a solid as its first argument")
		}
		s, err := toSolid(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("castellate: %w", err)
		}
		v, ok := pa.kw["cells"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("castellate: :cells is required")
		}
		cells, err := toCells(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("castellate: cells: %w", err)
		}
		padding, err := pa.number("padding", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		if padding < 0 {
			return zygo.SexpNull, fmt.Errorf("castellate: padding must not be negative, got %g", padding)
		}
		return &sexpCastellated{recipe: &CastellateRecipe{Solid: s.solid, Cells: cells, Padding: padding}}, nil
	})

	// -----------------------------------------------------------------------
	// (region "name" recipe)
	// -----------------------------------------------------------------------
	env.AddFunction("region", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("region requires a name and a mesh recipe")
		}
		regionName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("region: name: %w", err)
		}

		var recipe Recipe
		switch body := args[1].(type) {
		case *sexpBlock:
			recipe = body.recipe
		case *sexpCastellated:
			recipe = body.recipe
		default:
			return zygo.SexpNull, fmt.Errorf("region: expected block or castellate expression, got %T (%s)",
				args[1], args[1].SexpString(nil))
		}

		reg, err := c.add(regionName, recipe)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("region: %w", err)
		}
		return &sexpRegion{region: reg}, nil
	})
}
