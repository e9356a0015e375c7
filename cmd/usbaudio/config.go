package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/viamrobotics/usbaudio/audioswitch"
	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/board/fake"
	"github.com/viamrobotics/usbaudio/board/genericlinux"
	"github.com/viamrobotics/usbaudio/logging"
)

// boardConfig names the board the audio switch reads detect lines from. Fake boards are for
// trying a config out on a machine without the hardware.
type boardConfig struct {
	Name string `json:"name"`
	Fake bool   `json:"fake,omitempty"`
	genericlinux.Config
}

// fileConfig is the layout of the config file.
type fileConfig struct {
	Board *boardConfig           `json:"board,omitempty"`
	Audio map[string]interface{} `json:"audio"`

	audio *audioswitch.Config
}

func readConfigFile(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf fileConfig
	if err := json.Unmarshal(raw, &conf); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if conf.Audio == nil {
		return nil, errors.Errorf("%s has no audio section", path)
	}
	conf.audio, err = audioswitch.NewConfig(conf.Audio)
	if err != nil {
		return nil, err
	}
	if conf.Board != nil {
		if conf.Board.Name == "" {
			return nil, errors.New("board needs a name")
		}
		if conf.audio.Board == "" {
			conf.audio.Board = conf.Board.Name
		}
	}
	if _, err := conf.audio.Validate("audio"); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (conf *fileConfig) openBoard(ctx context.Context, logger logging.Logger) (board.Board, error) {
	if conf.Board == nil {
		return nil, nil
	}
	if conf.Board.Fake {
		return fake.NewBoard(&fake.Config{
			AnalogReaders:     conf.Board.Analogs,
			DigitalInterrupts: conf.Board.DigitalInterrupts,
		})
	}
	return genericlinux.NewBoard(ctx, &conf.Board.Config, logger)
}
