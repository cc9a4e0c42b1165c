// Package vector holds the small 2-D algebra used by the estimator: Cartesian
// and polar velocity forms, frame rotation and covariance propagation.
//
// All velocities are SI (m/s) and all angles are radians. A rotation by θ
// moves a vector *into* the frame whose x axis points along θ, so a ground
// frame vector rotated by the heading lands in the boat frame.
package vector
