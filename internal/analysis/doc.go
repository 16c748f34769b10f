// Package analysis characterizes sampled joint trajectories.
//
//   - [PowerSpectrum] and [DominantFrequency]: oscillation content of one
//     coordinate
//   - [PhasePortrait]: position against velocity for one joint
//   - [PoincareSection]: states recorded where one coordinate crosses a value
//
// A swinging pendulum's period:
//
//	f := analysis.DominantFrequency(traj.Column(0), dt)
//	period := 1 / f
package analysis
