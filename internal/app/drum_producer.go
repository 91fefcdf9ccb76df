// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/airdrum/internal/audio"
	"github.com/relabs-tech/airdrum/internal/clock"
	"github.com/relabs-tech/airdrum/internal/config"
	"github.com/relabs-tech/airdrum/internal/events"
	"github.com/relabs-tech/airdrum/internal/gesture"
	"github.com/relabs-tech/airdrum/internal/samplebank"
	"github.com/relabs-tech/airdrum/internal/sensorhub"
	"github.com/relabs-tech/airdrum/internal/shtp"
)

// poseIntervalMs throttles pose publishing; hits are published as they fire.
const poseIntervalMs = 100

// RunDrumProducer is the main pipeline: sensor hub → gesture detector →
// player queue, with hits and pose mirrored to MQTT. With useMock the sensor
// and the DAC are replaced by in-memory stand-ins so the whole pipeline runs
// on a dev machine.
func RunDrumProducer(useMock bool) error {
	log.Println("starting airdrum producer (sensor → audio + MQTT)")

	cfg := config.Get()
	clk := clock.New()

	if !useMock {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("periph init: %w", err)
		}
	}

	// --- Choose sample source (mock vs real sensor hub) ---
	var source gesture.SampleSource
	if useMock {
		log.Println("using mock sample source")
		source = gesture.NewMockSource()
	} else {
		hub, err := newSensorHub(cfg, clk)
		if err != nil {
			return err
		}
		source = hub
	}

	detector := gesture.New(int16(cfg.GyroHitThreshold))

	// --- Audio path ---
	var out audio.Output
	if useMock {
		out = &discardOutput{}
	} else {
		dac, err := audio.NewSPIDAC(cfg.DACSPIDevice, cfg.DACSPIHz, cfg.DACBits)
		if err != nil {
			return err
		}
		defer dac.CloseBus()
		out = dac
	}
	engine := audio.New(out, clk, cfg.DACBits)
	engine.SetOutput(engine.MidScale())

	bank, err := samplebank.Load(cfg.SampleDir)
	if err != nil {
		log.Printf("producer: sample bank unavailable (%v), using tone fallback for all voices", err)
		bank = nil
	}

	player := NewPlayer(engine, bank, cfg.ToneSampleRate, cfg.PlayQueueSize)
	go player.Run()
	defer player.Close()

	PlayStartupTones(engine, cfg.ToneSampleRate)

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("producer: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Commands: recalibrate the yaw zero or fire the kick pedal remotely.
	cmdToken := client.Subscribe(cfg.TopicCommands, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var cmd events.Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			log.Printf("producer: command unmarshal error: %v", err)
			return
		}
		switch cmd.Action {
		case "zero_yaw":
			// Compose with the prior offset so recalibrating at the same
			// heading is stable; the raw heading is not on the wire.
			offset := detector.ZeroYaw()
			log.Printf("producer: yaw zeroed, offset now %.1f", offset)
		case "set_yaw_offset":
			detector.SetYawOffset(cmd.Value)
			log.Printf("producer: yaw offset set to %.1f", cmd.Value)
		case "kick":
			player.Enqueue(events.Kick)
			publishHit(client, cfg.TopicHits, events.Kick, detector, clk)
		default:
			log.Printf("producer: unknown command %q", cmd.Action)
		}
	})
	cmdToken.Wait()
	if cmdToken.Error() != nil {
		return cmdToken.Error()
	}
	log.Printf("producer: subscribed to %s", cfg.TopicCommands)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	log.Println("producer: entering poll loop")
	var lastPoseMs uint32

	for {
		select {
		case <-sigCh:
			log.Printf("producer: shutting down (dropped triggers: %d)", player.Dropped())
			return nil
		default:
		}

		samples, err := source.Next()
		if err != nil {
			log.Printf("producer: sample source error: %v", err)
			clk.SleepMs(10)
			continue
		}

		for _, s := range samples {
			if sound := detector.Process(s); sound != events.None {
				if !player.Enqueue(sound) {
					log.Printf("producer: queue full, dropped %s", sound)
				}
				publishHit(client, cfg.TopicHits, sound, detector, clk)
			}
		}

		if now := clk.Millis(); now-lastPoseMs >= poseIntervalMs {
			lastPoseMs = now
			pose := detector.Pose()
			if payload, err := json.Marshal(pose); err != nil {
				log.Printf("producer: pose marshal error: %v", err)
			} else {
				client.Publish(cfg.TopicPose, 0, true, payload)
			}
		}

		if len(samples) == 0 {
			clk.SleepMs(1)
		}
	}
}

func publishHit(client mqtt.Client, topic string, sound events.Sound, d *gesture.Detector, clk clock.Source) {
	pose := d.Pose()
	hit := events.Hit{
		Sound:  sound.String(),
		ID:     uint8(sound),
		Yaw:    pose.Yaw,
		Pitch:  pose.Pitch,
		TimeMs: clk.Millis(),
	}
	payload, err := json.Marshal(hit)
	if err != nil {
		log.Printf("producer: hit marshal error: %v", err)
		return
	}
	if token := client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
		log.Printf("producer: MQTT publish error (hits): %v", token.Error())
	}
	log.Printf("producer: HIT %s yaw=%.1f pitch=%.1f", sound, pose.Yaw, pose.Pitch)
}

// newSensorHub wires the real sensor: SPI bus, chip-select and interrupt
// lines, transport, then the hub's reset/start/enable sequence.
func newSensorHub(cfg *config.Config, clk clock.Source) (*sensorhub.Hub, error) {
	bus, err := shtp.NewSPIBus(cfg.SensorSPIDevice, cfg.SensorSPIHz)
	if err != nil {
		return nil, err
	}

	cs := gpioreg.ByName(cfg.SensorCSPin)
	if cs == nil {
		return nil, fmt.Errorf("producer: CS pin %q not found", cfg.SensorCSPin)
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("producer: CS pin init: %w", err)
	}

	intPin := gpioreg.ByName(cfg.SensorINTPin)
	if intPin == nil {
		return nil, fmt.Errorf("producer: INT pin %q not found", cfg.SensorINTPin)
	}
	if err := intPin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("producer: INT pin init: %w", err)
	}

	var rst shtp.OutputPin
	if cfg.SensorRSTPin != "" {
		rstPin := gpioreg.ByName(cfg.SensorRSTPin)
		if rstPin == nil {
			return nil, fmt.Errorf("producer: RST pin %q not found", cfg.SensorRSTPin)
		}
		rst = rstPin
	}

	tr := shtp.New(bus, cs, intPin, clk)
	hub := sensorhub.New(tr, rst, clk)

	if err := hub.Start(); err != nil {
		return nil, err
	}
	if err := hub.EnableReport(sensorhub.ReportGameRotation, cfg.SensorReportIntervalUS); err != nil {
		return nil, err
	}
	if err := hub.EnableReport(sensorhub.ReportGyro, cfg.SensorReportIntervalUS); err != nil {
		return nil, err
	}
	return hub, nil
}

// discardOutput swallows writes so the audio path can run without a DAC.
type discardOutput struct {
	enabled bool
}

func (d *discardOutput) Enabled() bool            { return d.enabled }
func (d *discardOutput) Enable() error            { d.enabled = true; return nil }
func (d *discardOutput) Write(value uint16) error { return nil }
