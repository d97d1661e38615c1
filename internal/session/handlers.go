package session

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/sweeney/plant-logger/internal/config"
	"github.com/sweeney/plant-logger/internal/logic"
	"github.com/sweeney/plant-logger/internal/mqtt"
	"github.com/sweeney/plant-logger/internal/sensor"
)

// handlers is the dispatch table for server-initiated commands.
func (s *Session) handlers() map[logic.Command]mqtt.HandlerFunc {
	return map[logic.Command]mqtt.HandlerFunc{
		logic.CommandGetConfig:    s.getConfig,
		logic.CommandSetConfig:    s.setConfig,
		logic.CommandSetPairingID: s.setPairingID,
		logic.CommandCalibrate:    s.calibrate,
	}
}

// command wraps h with logging.
func (s *Session) command(cmd logic.Command, h mqtt.HandlerFunc) mqtt.HandlerFunc {
	log := s.log.WithField("command", cmd.String())
	return func(args []json.RawMessage) (any, error) {
		log.Info("Command received")
		res, err := h(args)
		if err != nil {
			log.Warnf("Command failed: %v", err)
		}
		return res, err
	}
}

func (s *Session) getConfig([]json.RawMessage) (any, error) {
	return s.cfg.Snapshot(), nil
}

// setConfig merges, persists and, while ticking, shows the Active flag on
// the indicator straight away. Values that fail to parse are reported back
// after the rest have been applied.
func (s *Session) setConfig(args []json.RawMessage) (any, error) {
	var values config.Snapshot
	if err := mqtt.Arg(args, 0, &values); err != nil {
		return nil, err
	}

	if id, ok := values[config.SectionLogging][config.KeyLoggerID]; ok && fmt.Sprint(id) != s.cfg.LoggerID() {
		s.log.Warnf("Ignoring remote change of %s to %q", config.KeyLoggerID, fmt.Sprint(id))
	}

	mergeErr := s.cfg.Merge(values)
	if url := s.cfg.SocketURL(); url != s.socketURL {
		s.log.Warnf("%s changed to %s, the hub connection keeps %s until restart",
			config.KeySocketURL, url, s.socketURL)
	}
	if err := s.cfg.Save(); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	s.syncIdentity()

	if s.tick.Active() {
		if s.cfg.Active() {
			s.ind.SetGreen(1)
		} else {
			s.ind.SetRed(1)
		}
	}
	return nil, mergeErr
}

func (s *Session) setPairingID(args []json.RawMessage) (any, error) {
	var id string
	if err := mqtt.Arg(args, 0, &id); err != nil {
		return nil, err
	}
	if err := s.cfg.Set(config.SectionLogging, config.KeyPairingID, id); err != nil {
		return nil, err
	}
	if err := s.cfg.Save(); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	s.syncIdentity()
	s.log.WithField("pairing", id).Info("Pairing updated")
	return nil, nil
}

// calibrate stores the live soil voltage as the Moist or Dry threshold.
// Any other kind is ignored.
func (s *Session) calibrate(args []json.RawMessage) (any, error) {
	var kind string
	if err := mqtt.Arg(args, 0, &kind); err != nil {
		return nil, err
	}
	c, ok := logic.ParseCalibration(kind)
	if !ok {
		s.log.Warnf("Ignoring calibration kind %q", kind)
		return nil, nil
	}
	v, err := Calibrate(s.cfg, s.sensors, c)
	if err != nil {
		return nil, err
	}
	s.log.WithField("kind", c).Infof("Calibrated at %.2fV", v)
	return nil, nil
}

// Calibrate reads the soil voltage once, stores it rounded to two decimals
// as the threshold selected by c and saves the configuration. It returns
// the stored voltage.
func Calibrate(cfg *config.Store, sensors sensor.Reader, c logic.Calibration) (float64, error) {
	v, err := sensors.Voltage()
	if err != nil {
		return 0, fmt.Errorf("read soil voltage: %w", err)
	}
	v = math.Round(v*100) / 100
	if err := cfg.Set(config.SectionSoil, string(c), v); err != nil {
		return 0, err
	}
	if err := cfg.Save(); err != nil {
		return 0, fmt.Errorf("save config: %w", err)
	}
	return v, nil
}
