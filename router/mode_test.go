package router

import (
	"testing"

	"go.viam.com/test"
)

func TestParseOutputMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want OutputMode
	}{
		{"auto", ModeAuto},
		{"AUTO_SELECT", ModeAuto},
		{" Internal ", ModeInternal},
		{"INTERNAL_SPEAKERS", ModeInternal},
		{"external", ModeExternal},
		{"usb_headset", ModeExternal},
		{"0", ModeInternal},
		{"1", ModeExternal},
		{"2", ModeAuto},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseOutputMode(tc.in)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got, test.ShouldEqual, tc.want)
		})
	}

	for _, bad := range []string{"", "speaker", "3", "-1"} {
		_, err := ParseOutputMode(bad)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestModeFromCode(t *testing.T) {
	m, err := ModeFromCode(2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldEqual, ModeAuto)
	test.That(t, m.String(), test.ShouldEqual, "auto")

	_, err = ModeFromCode(7)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, OutputMode(7).String(), test.ShouldEqual, "unknown(7)")
}

func TestResolve(t *testing.T) {
	for _, present := range []bool{false, true} {
		test.That(t, Resolve(ModeInternal, present), test.ShouldEqual, OutputInternal)
		test.That(t, Resolve(ModeExternal, present), test.ShouldEqual, OutputExternal)
	}
	test.That(t, Resolve(ModeAuto, false), test.ShouldEqual, OutputInternal)
	test.That(t, Resolve(ModeAuto, true), test.ShouldEqual, OutputExternal)
}
