package flow

// Tracker abstracts the optical-flow implementation behind the cascade
// engine. Velocities are east (increasing column) and south (increasing
// row) displacements in pixels per time step, one value per grid pixel.
type Tracker interface {
	// FindVelocities estimates the motion that carries prev onto curr.
	// deltaMinutes is the time between the two maps.
	FindVelocities(prev, curr []float32, noData float32, deltaMinutes float64) error

	// Velocities returns copies of the current east and south fields.
	Velocities() (east, south []float32)

	// SetVelocities replaces the velocity field.
	SetVelocities(east, south []float32) error

	// Advect moves in forward by steps time steps along the velocity
	// field and writes the result to out. Pixels whose source lies off
	// the grid or on missing data are set to noData.
	Advect(steps int, noData float32, in, out []float32) error
}

// Verify at compile time that *BlockMatcher implements Tracker.
var _ Tracker = (*BlockMatcher)(nil)
