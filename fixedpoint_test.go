package main

import "testing"

func TestFixedConversion(t *testing.T) {
	cases := []struct {
		world float64
		fixed FixedScalar
	}{
		{0, 0},
		{1.0, 1000},
		{-1.0, -1000},
		{0.001, 1},
		{5.5, 5500},
		{-3.25, -3250},
	}
	for _, c := range cases {
		if got := ToFixed(c.world); got != c.fixed {
			t.Errorf("ToFixed(%v) = %d, want %d", c.world, got, c.fixed)
		}
		if got := c.fixed.World(); got != c.world {
			t.Errorf("(%d).World() = %v, want %v", c.fixed, got, c.world)
		}
	}
}

func TestApproachZero(t *testing.T) {
	cases := []struct {
		v, step, want FixedScalar
	}{
		{100, 25, 75},
		{-100, 25, -75},
		{25, 25, 0},
		{-25, 25, 0},
		{10, 25, 0},
		{-10, 25, 0},
		{0, 25, 0},
	}
	for _, c := range cases {
		if got := approachZero(c.v, c.step); got != c.want {
			t.Errorf("approachZero(%d, %d) = %d, want %d", c.v, c.step, got, c.want)
		}
	}
}

func TestDerivedConstants(t *testing.T) {
	// 5.0 world units/s at 30 t/s, scale 1000
	if MaxSpeedPerTick != 166 {
		t.Errorf("MaxSpeedPerTick = %d, want 166", MaxSpeedPerTick)
	}
	if FrictionPerTick <= 0 || FrictionPerTick >= MaxSpeedPerTick {
		t.Errorf("FrictionPerTick = %d out of range", FrictionPerTick)
	}
}
