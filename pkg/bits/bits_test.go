// Copyright 2026 The Sandtrap Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bits

import (
	"reflect"
	"testing"
)

func TestMask64(t *testing.T) {
	for _, tc := range []struct {
		bits []int
		want uint64
	}{
		{nil, 0},
		{[]int{0}, 0x1},
		{[]int{0, 1}, 0x3},
		{[]int{3, 63}, 0x8000000000000008},
	} {
		if got := Mask64(tc.bits...); got != tc.want {
			t.Errorf("Mask64(%v) = %#x, want %#x", tc.bits, got, tc.want)
		}
	}
}

func TestForEachSetBit64(t *testing.T) {
	for _, want := range [][]int{
		{},
		{0},
		{1, 3},
		{0, 31, 63},
	} {
		n := Mask64(want...)
		got := []int{}
		ForEachSetBit64(n, func(i int) {
			got = append(got, i)
		})
		if len(got) != len(want) || (len(want) != 0 && !reflect.DeepEqual(got, want)) {
			t.Errorf("ForEachSetBit64(%#x): iterated bits %v, wanted %v", n, got, want)
		}
	}
}

func TestIsOn64(t *testing.T) {
	if !IsOn64(0xf, 0x5) {
		t.Errorf("IsOn64(0xf, 0x5) = false, want true")
	}
	if IsOn64(0x1, 0x3) {
		t.Errorf("IsOn64(0x1, 0x3) = true, want false")
	}
	if !IsAnyOn64(0x1, 0x3) {
		t.Errorf("IsAnyOn64(0x1, 0x3) = false, want true")
	}
}
