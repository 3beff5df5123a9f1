//go:build pcap

// Command replay drives the fusion engine from a recorded pcap capture of
// sensor frames instead of live serial ports — an offline stand-in for the
// socket-CAN interrupt thread spec.md §1 keeps out of the core's scope.
// Each UDP datagram's payload is expected to be "sensorIndex,posX,posY,velX,velY".
// Packets are grouped into fixed-dt cycles by capture timestamp and fed to
// the engine in capture order, recording every cycle to the history db.
//
// Grounded on the teacher's cmd/pcap-test (gopacket.NewPacketSource over a
// pcap.OpenOffline handle) and cmd/tools/replay-server's drive-the-pipeline-
// from-a-file pattern, applied to the fusion engine instead of the lidar
// tracking pipeline.
package main

import (
	"flag"
	"log"
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/avfusion/radar-fusion/internal/config"
	"github.com/avfusion/radar-fusion/internal/db"
	"github.com/avfusion/radar-fusion/internal/fusion/engine"
	"github.com/avfusion/radar-fusion/internal/sensors"
)

var (
	pcapPath   = flag.String("pcap", "", "path to the pcap capture to replay")
	configPath = flag.String("config", config.DefaultConfigPath, "path to the tuning defaults JSON file")
	dbPath     = flag.String("db", "replay.db", "path to the output history database")
)

func main() {
	flag.Parse()
	if *pcapPath == "" {
		log.Fatal("replay: -pcap is required")
	}

	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("replay: failed to load config: %v", err)
	}

	sensorTable := sensors.Table{
		{Type: sensors.Radar, Mounting: 45, FOV: 90},
		{Type: sensors.Radar, Mounting: -45, FOV: 90},
		{Type: sensors.Radar, Mounting: 135, FOV: 90},
		{Type: sensors.Radar, Mounting: -135, FOV: 90},
	}

	history, err := db.New(*dbPath)
	if err != nil {
		log.Fatalf("replay: failed to open history db: %v", err)
	}
	defer history.Close()

	handle, err := pcap.OpenOffline(*pcapPath)
	if err != nil {
		log.Fatalf("replay: failed to open pcap %s: %v", *pcapPath, err)
	}
	defer handle.Close()

	eng := engine.New(cfg, sensorTable)
	dtNanos := int64(cfg.GetCycleTime() * 1e9)

	source := gopacket.NewPacketSource(handle, handle.LinkType())

	var seq int64
	var cycleStart int64
	var haveCycleStart bool
	var buffer []engine.Measurement

	flushCycle := func(tsNanos int64) {
		seq++
		diagnostics := func() []engine.Diagnostic {
			eng.Cycle(buffer)
			return eng.Diagnostics()
		}()
		if err := history.RecordCycle(seq, tsNanos, len(buffer), diagnostics); err != nil {
			log.Printf("replay: failed to record cycle %d: %v", seq, err)
		}
		buffer = buffer[:0]
	}

	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}

		tsNanos := packet.Metadata().Timestamp.UnixNano()
		if !haveCycleStart {
			cycleStart = tsNanos
			haveCycleStart = true
		}
		for tsNanos-cycleStart >= dtNanos {
			flushCycle(cycleStart)
			cycleStart += dtNanos
		}

		m, ok := parsePayload(string(udp.Payload))
		if ok {
			buffer = append(buffer, m)
		}
	}

	if len(buffer) > 0 || seq == 0 {
		flushCycle(cycleStart)
	}

	log.Printf("replay: replayed %d cycles from %s into %s", seq, *pcapPath, *dbPath)
}

// parsePayload parses "sensorIndex,posX,posY,velX,velY" into a Measurement.
func parsePayload(payload string) (engine.Measurement, bool) {
	fields := strings.Split(strings.TrimSpace(payload), ",")
	if len(fields) != 5 {
		return engine.Measurement{}, false
	}
	sensorIdx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return engine.Measurement{}, false
	}
	var values [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 32)
		if err != nil {
			return engine.Measurement{}, false
		}
		values[i] = v
	}
	return engine.Measurement{
		SensorIndex: sensorIdx,
		PosX:        float32(values[0]),
		PosY:        float32(values[1]),
		VelX:        float32(values[2]),
		VelY:        float32(values[3]),
		Valid:       true,
	}, true
}
