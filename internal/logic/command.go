package logic

// Command is a server-initiated call the logger knows how to handle.
type Command int

const (
	CommandGetConfig Command = iota + 1
	CommandSetConfig
	CommandSetPairingID
	CommandCalibrate
)

var commandMethods = map[Command]string{
	CommandGetConfig:    "GetConfig",
	CommandSetConfig:    "SetConfig",
	CommandSetPairingID: "SetPairingId",
	CommandCalibrate:    "Calibrate",
}

// Commands returns every command in a stable order.
func Commands() []Command {
	return []Command{CommandGetConfig, CommandSetConfig, CommandSetPairingID, CommandCalibrate}
}

// Method returns the remote method name the command is invoked by.
func (c Command) Method() string {
	return commandMethods[c]
}

func (c Command) String() string {
	if m, ok := commandMethods[c]; ok {
		return m
	}
	return "Unknown"
}

// ParseCommand maps a remote method name to its command.
func ParseCommand(method string) (Command, bool) {
	for c, m := range commandMethods {
		if m == method {
			return c, true
		}
	}
	return 0, false
}

// Calibration selects which soil threshold a calibration overwrites.
// Its value doubles as the config key name.
type Calibration string

const (
	CalibrationMoist Calibration = "Moist"
	CalibrationDry   Calibration = "Dry"
)

// ParseCalibration accepts exactly "Moist" or "Dry".
func ParseCalibration(kind string) (Calibration, bool) {
	switch Calibration(kind) {
	case CalibrationMoist, CalibrationDry:
		return Calibration(kind), true
	}
	return "", false
}
