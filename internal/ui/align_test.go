package ui

import (
	"reflect"
	"testing"
)

func TestAlignOnDot(t *testing.T) {
	tests := []struct {
		name string
		in   [][]string
		want [][]string
	}{
		{
			name: "empty",
			in:   [][]string{},
			want: [][]string{},
		},
		{
			name: "domains line up",
			in: [][]string{
				{"Fan", "light.old_fan"},
				{"Temp", "sensor.temp"},
				{"Sun", "sun.sun"},
			},
			want: [][]string{
				{"Fan", " light.old_fan"},
				{"Temp", "sensor.temp"},
				{"Sun", "   sun.sun"},
			},
		},
		{
			name: "cells without a dot untouched",
			in: [][]string{
				{"a.b", ""},
				{"none", "switch.x"},
				{"long.c", "x"},
			},
			want: [][]string{
				{"   a.b", ""},
				{"none", "switch.x"},
				{"long.c", "x"},
			},
		},
		{
			name: "only first dot counts",
			in: [][]string{
				{"v1.2.3"},
				{"version.4"},
			},
			want: [][]string{
				{"     v1.2.3"},
				{"version.4"},
			},
		},
		{
			name: "multibyte prefixes measured in characters",
			in: [][]string{
				{"é.x"},
				{"ab.y"},
			},
			want: [][]string{
				{" é.x"},
				{"ab.y"},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := AlignOnDot(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AlignOnDot() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAlignOnDotDoesNotMutateInput(t *testing.T) {
	in := [][]string{{"light.a"}, {"sensor.b"}}
	_ = AlignOnDot(in)
	if in[0][0] != "light.a" {
		t.Errorf("input mutated: %q", in)
	}
}
