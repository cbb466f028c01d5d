package swapper

import (
	"image"
	"testing"
)

func TestBuildMaskEmptyContour(t *testing.T) {
	if m := BuildMask(nil, image.Pt(10, 10)); m != nil {
		t.Error("Expected nil mask for empty contour")
	}
	if m := BuildHullMask([]image.Point{}, image.Pt(10, 10)); m != nil {
		t.Error("Expected nil hull mask for empty contour")
	}
}

func TestBuildMaskPolarityAndSize(t *testing.T) {
	square := []image.Point{{20, 20}, {80, 20}, {80, 80}, {20, 80}}
	m := BuildMask(square, image.Pt(120, 100))
	defer m.Close()

	if m.Size() != image.Pt(120, 100) {
		t.Fatalf("Expected mask 120x100, got %v", m.Size())
	}

	tests := []struct {
		x, y int
		want uint8
	}{
		{50, 50, 255},
		{25, 75, 255},
		{5, 5, 0},
		{100, 50, 0},
		{50, 95, 0},
	}
	for _, tt := range tests {
		if got := m.At(tt.x, tt.y); got != tt.want {
			t.Errorf("mask(%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestBuildMaskBowtieOrdering(t *testing.T) {
	// The same square corners in crossing order trace two triangles that
	// meet at the centre; the top and bottom wedges stay outside.
	bowtie := []image.Point{{20, 20}, {80, 80}, {80, 20}, {20, 80}}
	m := BuildMask(bowtie, image.Pt(100, 100))
	defer m.Close()

	if got := m.At(50, 25); got != 0 {
		t.Errorf("Expected top wedge outside the bowtie, got %d", got)
	}
	if got := m.At(25, 50); got != 255 {
		t.Errorf("Expected left lobe inside the bowtie, got %d", got)
	}

	hull := BuildHullMask(bowtie, image.Pt(100, 100))
	defer hull.Close()
	if got := hull.At(50, 25); got != 255 {
		t.Errorf("Expected hull mask to cover the top wedge, got %d", got)
	}
}

func TestCarveRegions(t *testing.T) {
	square := []image.Point{{0, 0}, {99, 0}, {99, 99}, {0, 99}}
	m := BuildMask(square, image.Pt(100, 100))
	defer m.Close()

	mouth := []image.Point{{40, 60}, {60, 60}, {60, 70}, {40, 70}}
	eye := []image.Point{{20, 30}, {30, 30}}
	CarveRegions(m, [][]image.Point{mouth, eye}, 1.2)

	if got := m.At(50, 65); got != 0 {
		t.Errorf("Expected carved mouth, got %d", got)
	}
	// 20% expansion reaches one pixel past the original edge
	if got := m.At(39, 65); got != 0 {
		t.Errorf("Expected expanded mouth carve at x=39, got %d", got)
	}
	if got := m.At(25, 30); got != 0 {
		t.Errorf("Expected carved eye, got %d", got)
	}
	if got := m.At(80, 20); got != 255 {
		t.Errorf("Expected untouched face pixel, got %d", got)
	}

	CarveRegions(nil, [][]image.Point{mouth}, 1)
}

func TestSoften(t *testing.T) {
	square := []image.Point{{20, 20}, {80, 20}, {80, 80}, {20, 80}}
	m := BuildMask(square, image.Pt(100, 100))
	defer m.Close()

	soft := Soften(m, 10)
	defer soft.Close()

	if v := soft.At(50, 50); v != 255 {
		t.Errorf("Expected solid centre, got %d", v)
	}
	if v := soft.At(20, 50); v == 0 || v == 255 {
		t.Errorf("Expected a soft edge, got %d", v)
	}
	if m.At(19, 50) != 0 {
		t.Error("Soften must not modify its input")
	}
}
