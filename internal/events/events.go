// Package events defines the trigger-event vocabulary shared by the
// detector, the audio player, and the MQTT/web/serial consumers.
package events

// Sound identifies one drum voice. The numeric values are the wire ids
// published on the hit topic and streamed over serial.
type Sound uint8

const (
	Snare   Sound = 0
	HiHat   Sound = 1
	Kick    Sound = 2
	HighTom Sound = 3
	MidTom  Sound = 4
	Crash   Sound = 5
	Ride    Sound = 6
	LowTom  Sound = 7

	// None means no trigger resolved from the sample.
	None Sound = 255
)

var soundNames = map[Sound]string{
	Snare:   "SNARE",
	HiHat:   "HIHAT",
	Kick:    "KICK",
	HighTom: "HIGH_TOM",
	MidTom:  "MID_TOM",
	Crash:   "CRASH",
	Ride:    "RIDE",
	LowTom:  "LOW_TOM",
	None:    "NONE",
}

func (s Sound) String() string {
	if name, ok := soundNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Hit is one resolved trigger event, suitable for JSON and MQTT.
type Hit struct {
	Sound  string  `json:"sound"`
	ID     uint8   `json:"id"`
	Yaw    float64 `json:"yaw"`
	Pitch  float64 `json:"pitch"`
	TimeMs uint32  `json:"time_ms"`
}

// Command is a control message on the command topic.
// Actions: "zero_yaw" (make the current heading calibrated zero),
// "set_yaw_offset" (Value = absolute raw offset in degrees), "kick".
type Command struct {
	Action string  `json:"action"`
	Value  float64 `json:"value"`
}
