package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/plant-logger/internal/endpoint"
	"github.com/sweeney/plant-logger/internal/logic"
	"github.com/sweeney/plant-logger/internal/status"
)

// onTick runs on the schedule goroutine; runs never overlap.
func (s *Session) onTick() {
	if s.closing() {
		return
	}
	s.status.RecordTick()

	if !s.cfg.Active() {
		s.ind.SetRed(1)
		s.status.RecordSkip()
		s.log.Info("Logging inactive, report skipped")
		return
	}
	s.ind.SetGreen(1)

	err := s.report()
	switch {
	case err == nil:
	case s.closing():
	case errors.Is(err, logic.ErrUncalibrated):
		s.status.RecordSkip()
		s.log.Warn("Moisture thresholds are equal, report skipped")
	case endpoint.IsTimeout(err):
		s.status.RecordFailure(status.ResultTimeout, err)
		s.log.Warnf("Report timed out: %v", err)
		s.recoverFromTimeout()
	case errors.Is(err, endpoint.ErrMalformed):
		s.status.RecordFailure(status.ResultError, err)
		s.fail(err)
	default:
		s.status.RecordFailure(status.ResultError, err)
		s.log.Errorf("Report failed: %v", err)
	}
}

// recoverFromTimeout halts ticking, blocks in probing and then resumes
// ticking at once, unless the connection changed state meanwhile.
func (s *Session) recoverFromTimeout() {
	s.tick.Stop()
	s.setState(logic.StateProbing)

	if err := s.probe(); err != nil {
		if !s.closing() {
			s.fail(err)
		}
		return
	}

	s.mu.Lock()
	resume := s.state == logic.StateProbing
	if resume {
		s.state = logic.StateActive
	}
	s.mu.Unlock()

	if resume {
		s.status.SetState(logic.StateActive)
		s.log.Info("Backend reachable again, resuming ticks")
		s.tick.Start(0)
	}
}

func (s *Session) report() error {
	r, err := s.read()
	if err != nil {
		return err
	}
	if err := s.reporter.Report(s.ctx, s.cfg.RestURL(), r); err != nil {
		return err
	}
	s.status.RecordReport(r, time.Now())
	s.log.WithFields(readingFields(r)).Info("Reading reported")
	return nil
}

// read takes one reading. ErrUncalibrated is returned when the soil
// thresholds do not allow a moisture percentage.
func (s *Session) read() (logic.Reading, error) {
	temp, err := s.sensors.Temperature()
	if err != nil {
		return logic.Reading{}, fmt.Errorf("read temperature: %w", err)
	}
	humid, err := s.sensors.Humidity()
	if err != nil {
		return logic.Reading{}, fmt.Errorf("read humidity: %w", err)
	}
	volts, err := s.sensors.Voltage()
	if err != nil {
		return logic.Reading{}, fmt.Errorf("read soil voltage: %w", err)
	}

	moist, dry := s.cfg.Thresholds()
	pct, err := logic.Moisture(volts, moist, dry)
	if err != nil {
		return logic.Reading{}, err
	}

	return logic.Reading{
		Pairing:     s.cfg.PairingID(),
		Temperature: temp,
		Humidity:    humid,
		Moisture:    pct,
	}, nil
}

func readingFields(r logic.Reading) logrus.Fields {
	return logrus.Fields{
		"pairing":     r.Pairing,
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
		"moisture":    r.Moisture,
	}
}
