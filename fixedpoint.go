package main

const (
	TickRate = 30   // simulation ticks per second
	PosScale = 1000 // fixed-point scale: 1.0 world unit = 1000 fixed units
)

// Movement tuning. MaxSpeedPerTick is derived once from the design-time max
// speed (5.0 world units/s) and the tick rate; it is never recomputed at
// runtime.
const (
	MaxSpeedPerTick = FixedScalar((5 * PosScale) / TickRate)
	FrictionPerTick = FixedScalar(25) // 0.025 world units of drag per tick
)

// FixedScalar is an integer-scaled world coordinate or velocity. All
// simulation arithmetic happens on this type so results are bit-identical
// across platforms; float64 only appears at the display boundary.
type FixedScalar int32

// ToFixed converts display units to fixed-point. Lossy, presentation-side
// conversions must never feed back into simulation state.
func ToFixed(worldUnits float64) FixedScalar {
	return FixedScalar(worldUnits * PosScale)
}

// World converts a fixed-point value to display units.
func (f FixedScalar) World() float64 {
	return float64(f) / PosScale
}

// approachZero moves v toward zero by step without overshooting the sign.
func approachZero(v, step FixedScalar) FixedScalar {
	if v > step {
		return v - step
	}
	if v < -step {
		return v + step
	}
	return 0
}
