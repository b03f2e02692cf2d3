// Package kernel defines the abstract solid kernel used to describe the
// geometry a castellated mesh is cut from. Implementations (sdfx) provide
// primitives, booleans and point-distance queries behind this interface so
// mesh generators never depend on a particular CAD library.
package kernel

// Solid is an opaque handle to a kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)

	// Distance returns the signed distance from p to the surface,
	// negative inside the solid.
	Distance(p [3]float64) float64
}

// Kernel is the abstract solid kernel interface.
type Kernel interface {
	// Primitives, centred on the origin.
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64, segments int) Solid
	Sphere(radius float64) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// ToMesh tessellates the solid surface for previews.
	ToMesh(s Solid) (*Mesh, error)
}

// Inside reports whether p lies strictly inside s.
func Inside(s Solid, p [3]float64) bool {
	return s.Distance(p) < 0
}
