// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package envfs

import "testing"

func TestChildPath(t *testing.T) {
	cases := []struct {
		parent, name, want string
	}{
		{"", "bin", "bin"},
		{"bin", "vim", "bin/vim"},
		{"usr/bin", "ls", "usr/bin/ls"},
	}
	for _, c := range cases {
		if got := childPath(c.parent, c.name); got != c.want {
			t.Fatalf("childPath(%q, %q) = %q, want %q", c.parent, c.name, got, c.want)
		}
	}
}

func TestNeedsTrampolineRewrite(t *testing.T) {
	const regular = true
	const dir = false

	cases := []struct {
		name      string
		isRaw     bool
		isRegular bool
		mode      uint32
		want      bool
	}{
		{"exe view, executable regular file", false, regular, 0755, true},
		{"exe view, non-executable regular file", false, regular, 0644, false},
		{"exe view, executable directory", false, dir, 0755, false},
		{"raw view, executable regular file", true, regular, 0755, false},
		{"exe view, group/other executable only", false, regular, 0050, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := needsTrampolineRewrite(c.isRaw, c.isRegular, c.mode); got != c.want {
				t.Fatalf("needsTrampolineRewrite(%v, %v, %o) = %v, want %v", c.isRaw, c.isRegular, c.mode, got, c.want)
			}
		})
	}
}

func TestMaskWriteBits(t *testing.T) {
	cases := map[uint32]uint32{
		0755: 0555,
		0644: 0444,
		0100: 0100,
		0222: 0,
	}
	for in, want := range cases {
		if got := maskWriteBits(in); got != want {
			t.Fatalf("maskWriteBits(%o) = %o, want %o", in, got, want)
		}
	}
}
