package kernel

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
// Values, when present, carries one scalar per vertex (a quality field
// painted onto the surface).
type Mesh struct {
	Vertices []float32 `json:"vertices"`         // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`          // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`          // [i0,i1,i2, ...] triangles
	Values   []float32 `json:"values,omitempty"` // [v0, v1, ...] per vertex
	Field    string    `json:"field,omitempty"`  // name of the field in Values
	PartName string    `json:"partName"`         // solid or patch the mesh came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// ValueRange returns the smallest and largest per-vertex value, or zeros
// when the mesh carries no values.
func (m *Mesh) ValueRange() (lo, hi float32) {
	if len(m.Values) == 0 {
		return 0, 0
	}
	lo, hi = m.Values[0], m.Values[0]
	for _, v := range m.Values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
