// Package serialport is the thin transport that turns one radar's serial
// line output into raw readings for the fusion engine. It owns nothing
// beyond framing: parsing a CSV line and handing the result to a channel is
// the whole job, matching the scope boundary spec.md §1 draws around CAN
// framing and the interrupt thread ("thin transport and glue layers").
package serialport

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/avfusion/radar-fusion/internal/monitoring"
)

// Reading is one raw radar observation parsed off the wire: a sensor table
// index plus position/velocity in the vehicle frame. It is the transport
// layer's entire contribution to a measurement.Build call — the builder
// owns everything derived (R, weight, priority).
type Reading struct {
	SensorIndex int
	PosX        float32
	PosY        float32
	VelX        float32
	VelY        float32
}

// Port reads framed ASCII CSV lines ("posX,posY,velX,velY") off a single
// radar's serial connection and emits Readings tagged with sensorIndex.
// Grounded on the teacher's RadarPort (root serial.go / radar/serial.go):
// same Monitor-loop-over-a-bufio.Scanner shape, generalized from one
// hardcoded port to any of the S configured sensors.
type Port struct {
	port        serial.Port
	sensorIndex int
	readings    chan Reading
}

// Open opens the named serial device at the radar's fixed baud rate and
// returns a Port that will tag every parsed reading with sensorIndex (the
// index into the engine's sensors.Table).
func Open(name string, sensorIndex int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}
	return &Port{
		port:        port,
		sensorIndex: sensorIndex,
		readings:    make(chan Reading),
	}, nil
}

// Readings returns the channel Monitor delivers parsed readings on.
func (p *Port) Readings() <-chan Reading {
	return p.readings
}

// Close closes the underlying port.
func (p *Port) Close() error {
	return p.port.Close()
}

// Monitor scans the port for newline-delimited readings until ctx is
// done or the underlying scan ends. Malformed lines are logged and dropped,
// never returned as an error, per spec.md §7 ("invalid input ... dropped
// silently at the builder"); here that boundary is pushed one layer earlier,
// to the parse step, since a line that does not even parse never reaches the
// builder.
func (p *Port) Monitor(ctx context.Context) error {
	defer close(p.readings)
	scan := bufio.NewScanner(p.port)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if !scan.Scan() {
				return scan.Err()
			}
			line := scan.Text()
			reading, ok := parseLine(line, p.sensorIndex)
			if !ok {
				monitoring.Logf("serialport: dropping malformed line from sensor %d: %q", p.sensorIndex, line)
				continue
			}
			select {
			case p.readings <- reading:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// parseLine parses "posX,posY,velX,velY" into a Reading. Extra whitespace
// is tolerated; anything else is rejected rather than guessed at.
func parseLine(line string, sensorIndex int) (Reading, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Reading{}, false
	}
	var values [4]float32
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return Reading{}, false
		}
		values[i] = float32(v)
	}
	return Reading{
		SensorIndex: sensorIndex,
		PosX:        values[0],
		PosY:        values[1],
		VelX:        values[2],
		VelY:        values[3],
	}, true
}
