package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/usbaudio/board/fake"
	"github.com/viamrobotics/usbaudio/logging"
	"github.com/viamrobotics/usbaudio/router"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usbaudio.json")
	test.That(t, os.WriteFile(path, []byte(body), 0o600), test.ShouldBeNil)
	return path
}

func TestReadConfigFile(t *testing.T) {
	t.Run("board name fills in audio board", func(t *testing.T) {
		path := writeConfig(t, `{
			"board": {"name": "pi", "fake": true, "digital_interrupts": [{"name": "detect", "pin": "4"}]},
			"audio": {
				"audio_output_mode": "external",
				"backends": [{"name": "jack", "type": "interrupt", "interrupt": "detect"}]
			}
		}`)
		conf, err := readConfigFile(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, conf.audio.Board, test.ShouldEqual, "pi")
		test.That(t, conf.audio.Mode(), test.ShouldEqual, router.ModeExternal)

		b, err := conf.openBoard(context.Background(), logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		_, ok := b.(*fake.Board)
		test.That(t, ok, test.ShouldBeTrue)
		_, err = b.DigitalInterruptByName("detect")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b.Close(context.Background()), test.ShouldBeNil)
	})

	t.Run("no board", func(t *testing.T) {
		path := writeConfig(t, `{"audio": {"backends": [{"name": "usb", "type": "descriptor"}]}}`)
		conf, err := readConfigFile(path)
		test.That(t, err, test.ShouldBeNil)
		b, err := conf.openBoard(context.Background(), logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b, test.ShouldBeNil)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := readConfigFile(filepath.Join(t.TempDir(), "missing.json"))
		test.That(t, err, test.ShouldNotBeNil)

		_, err = readConfigFile(writeConfig(t, `{`))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "parsing")

		_, err = readConfigFile(writeConfig(t, `{}`))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "no audio section")

		_, err = readConfigFile(writeConfig(t, `{"board": {}, "audio": {"backends": [{"name": "usb", "type": "descriptor"}]}}`))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "board needs a name")

		_, err = readConfigFile(writeConfig(t, `{"audio": {"backends": [{"name": "jack", "type": "level", "pins": ["17"]}]}}`))
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestCommandPath(t *testing.T) {
	logger := logging.NewTestLogger(t)
	marker := filepath.Join(t.TempDir(), "routed")

	p := &commandPath{external: "echo external > " + marker, logger: logger}
	test.That(t, p.ActivateInternal(context.Background()), test.ShouldBeNil)
	_, err := os.Stat(marker)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	test.That(t, p.ActivateExternal(context.Background()), test.ShouldBeNil)
	out, err := os.ReadFile(marker)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, "external\n")

	p.internal = "echo nope >&2; exit 3"
	err = p.ActivateInternal(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "nope")
}
