// Package polymesh defines the immutable polyhedral mesh snapshot used by
// the quality evaluator, its structural validation, and the derived
// geometry (face areas and centroids, cell centroids and volumes).
package polymesh
