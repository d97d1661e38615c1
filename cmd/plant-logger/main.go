// Command plant-logger reads the plant sensors, reports readings to the
// backend and serves remote configuration over the hub connection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sweeney/plant-logger/internal/config"
	"github.com/sweeney/plant-logger/internal/gpio"
	"github.com/sweeney/plant-logger/internal/logic"
	"github.com/sweeney/plant-logger/internal/mqtt"
	"github.com/sweeney/plant-logger/internal/probe"
	"github.com/sweeney/plant-logger/internal/report"
	"github.com/sweeney/plant-logger/internal/sensor"
	"github.com/sweeney/plant-logger/internal/session"
	"github.com/sweeney/plant-logger/internal/status"
	"github.com/sweeney/plant-logger/internal/web"
)

type options struct {
	configPath   string
	interval     time.Duration
	httpAddr     string
	i2cBus       string
	spiPort      string
	pinRed       int
	pinGreen     int
	pinButton    int
	printReading bool
	calibrate    string
	logLevel     string
	logFile      string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("plant-logger", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", config.DefaultPath, "Path to the ini configuration file")
	fs.DurationVar(&o.interval, "interval", 60*time.Second, "Report interval")
	fs.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	fs.StringVar(&o.i2cBus, "i2c", "", "I²C bus name (empty for the first bus)")
	fs.StringVar(&o.spiPort, "spi", "", "SPI port name (empty for the first port)")
	fs.IntVar(&o.pinRed, "pin-red", gpio.PinRed, "BCM pin number for the red LED")
	fs.IntVar(&o.pinGreen, "pin-green", gpio.PinGreen, "BCM pin number for the green LED")
	fs.IntVar(&o.pinButton, "button-pin", gpio.PinButton, "BCM pin number for the push button (-1 to disable)")
	fs.BoolVar(&o.printReading, "print-reading", false, "Print one sensor reading and exit")
	fs.StringVar(&o.calibrate, "calibrate", "", `Store the current soil voltage as the "Moist" or "Dry" threshold and exit`)
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFile, "log-file", "", "Also write logs to this file, rotated by size")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.interval <= 0 {
		return options{}, fmt.Errorf("interval must be positive, got %v", o.interval)
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "plant-logger: %v\n", err)
		os.Exit(2)
	}

	log, err := newLogger(opts.logLevel, opts.logFile, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plant-logger: %v\n", err)
		os.Exit(2)
	}

	if err := run(opts, log); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// newLogger builds the process logger. With a file name, entries also go
// to a size-rotated file.
func newLogger(level, file string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	log := logrus.New()
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(out)

	if file != "" {
		log.SetOutput(io.MultiWriter(out, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}))
	}
	return log, nil
}

func run(opts options, log *logrus.Logger) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.LoggerID() == "" {
		return fmt.Errorf("%w: set %s.%s in %s", session.ErrNotSetUp,
			config.SectionLogging, config.KeyLoggerID, cfg.Path())
	}

	// Calibration mode
	if opts.calibrate != "" {
		kind, ok := logic.ParseCalibration(opts.calibrate)
		if !ok {
			return fmt.Errorf("calibrate: kind must be %q or %q, got %q",
				logic.CalibrationMoist, logic.CalibrationDry, opts.calibrate)
		}
		sensors, err := sensor.Open(opts.i2cBus, opts.spiPort)
		if err != nil {
			return fmt.Errorf("init sensors: %w", err)
		}
		defer sensors.Close()

		v, err := session.Calibrate(cfg, sensors, kind)
		if err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		fmt.Printf("%s threshold set to %.2fV\n", kind, v)
		return nil
	}

	sensors, err := sensor.Open(opts.i2cBus, opts.spiPort)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	defer sensors.Close()

	// Print reading mode
	if opts.printReading {
		line, err := readOnce(cfg, sensors)
		if err != nil {
			return err
		}
		fmt.Println(line)
		return nil
	}

	ind, err := gpio.NewRealIndicator(opts.pinRed, opts.pinGreen)
	if err != nil {
		return fmt.Errorf("init leds: %w", err)
	}
	defer ind.Close()
	defer ind.Off()

	// Presses are coalesced; the session consumes them once it exists.
	presses := make(chan struct{}, 1)
	if opts.pinButton >= 0 {
		button, err := gpio.NewRealButton(opts.pinButton, func() {
			select {
			case presses <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return fmt.Errorf("init button: %w", err)
		}
		defer button.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tracker := status.NewTracker(time.Now(), statusConfig(opts, cfg), reg)

	conn, err := mqtt.NewRealConn(mqtt.Options{
		Broker:   cfg.SocketURL(),
		LoggerID: cfg.LoggerID(),
		Log:      component(log, "mqtt"),
	})
	if err != nil {
		return fmt.Errorf("init hub connection: %w", err)
	}

	prober := probe.New(ind, component(log, "probe"))
	prober.OnAttempt = tracker.RecordProbe

	sess := session.New(session.Deps{
		Config:    cfg,
		Sensors:   sensors,
		Indicator: ind,
		Prober:    prober,
		Reporter:  report.New(component(log, "report")),
		Conn:      conn,
		Status:    tracker,
		Log:       component(log, "session"),
	}, session.Options{Interval: opts.interval})

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker, reg)
		srv.Log = component(log, "web")
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", opts.httpAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		for {
			select {
			case <-presses:
				sess.TickNow()
			case <-ctx.Done():
				return
			}
		}
	}()

	log.WithFields(logrus.Fields{
		"logger_id": cfg.LoggerID(),
		"interval":  opts.interval,
		"socket":    cfg.SocketURL(),
		"rest":      cfg.RestURL(),
	}).Info("started")

	if err := sess.Run(ctx); err != nil {
		return err
	}
	log.Info("shutting down")
	return nil
}

func component(log *logrus.Logger, name string) logrus.FieldLogger {
	return log.WithField("component", name)
}

func statusConfig(opts options, cfg *config.Store) status.Config {
	return status.Config{
		ConfigPath: cfg.Path(),
		SocketURL:  cfg.SocketURL(),
		RestURL:    cfg.RestURL(),
		HTTPAddr:   opts.httpAddr,
		IntervalMs: opts.interval.Milliseconds(),
	}
}

// readOnce reads every sensor and formats the result for the terminal.
func readOnce(cfg *config.Store, sensors sensor.Reader) (string, error) {
	temp, err := sensors.Temperature()
	if err != nil {
		return "", fmt.Errorf("read temperature: %w", err)
	}
	humid, err := sensors.Humidity()
	if err != nil {
		return "", fmt.Errorf("read humidity: %w", err)
	}
	volts, err := sensors.Voltage()
	if err != nil {
		return "", fmt.Errorf("read soil voltage: %w", err)
	}
	moist, dry := cfg.Thresholds()
	pct, err := logic.Moisture(volts, moist, dry)
	return formatReading(temp, humid, volts, pct, err), nil
}

func formatReading(temp, humid, volts, moisture float64, moistErr error) string {
	m := fmt.Sprintf("%.2f%%", moisture)
	if moistErr != nil {
		m = "n/a (" + moistErr.Error() + ")"
	}
	return fmt.Sprintf("Temperature: %.1f°C, Humidity: %.1f%%, Soil: %.2fV, Moisture: %s",
		temp, humid, volts, m)
}
