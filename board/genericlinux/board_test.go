package genericlinux

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/logging"
)

func TestConfigValidate(t *testing.T) {
	conf := Config{Analogs: []board.AnalogReaderConfig{{Name: "vbus", Channel: "x"}}}
	err := conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bad analog channel")

	conf = Config{DigitalInterrupts: []board.DigitalInterruptConfig{{Name: "jack", Pin: "GPIO17"}}}
	err = conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line offset")

	conf = Config{
		Analogs:           []board.AnalogReaderConfig{{Name: "vbus", Channel: "2"}},
		DigitalInterrupts: []board.DigitalInterruptConfig{{Name: "jack", Pin: "17"}},
	}
	test.That(t, conf.Validate("path"), test.ShouldBeNil)
	test.That(t, conf.gpioChip(), test.ShouldEqual, defaultGPIOChip)
	test.That(t, conf.iioRoot(), test.ShouldEqual, defaultIIORoot)
}

func TestIIOAnalog(t *testing.T) {
	logger := logging.NewTestLogger(t)
	root := t.TempDir()
	dev := filepath.Join(root, "iio:device1")
	test.That(t, os.MkdirAll(dev, 0o755), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dev, "in_voltage3_raw"), []byte("1873\n"), 0o644), test.ShouldBeNil)

	b, err := NewBoard(context.Background(), &Config{
		IIORoot: root,
		Analogs: []board.AnalogReaderConfig{
			{Name: "vbus", Channel: "3", Device: "iio:device1"},
			{Name: "missing", Channel: "4", Device: "iio:device1"},
		},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, b.Close(context.Background()), test.ShouldBeNil)
	}()

	a, err := b.AnalogByName("vbus")
	test.That(t, err, test.ShouldBeNil)
	v, err := a.Read(context.Background(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v.Value, test.ShouldEqual, 1873)

	a, err = b.AnalogByName("missing")
	test.That(t, err, test.ShouldBeNil)
	_, err = a.Read(context.Background(), nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = b.AnalogByName("nope")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = b.DigitalInterruptByName("nope")
	test.That(t, err, test.ShouldNotBeNil)
}
