package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/airdrum/internal/config"
	"github.com/relabs-tech/airdrum/internal/events"
)

// RunSerialEvents bridges hit events to a serial line, one ASCII record per
// hit. Downstream MIDI converters and lighting rigs consume this stream
// without speaking MQTT.
func RunSerialEvents() error {
	cfg := config.Get()

	serialOpts := serial.OpenOptions{
		PortName:              cfg.SerialPort,
		BaudRate:              uint(cfg.SerialBaud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("serial: port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDSerial)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("serial: connected to MQTT broker at %s", cfg.MQTTBroker)

	hitToken := client.Subscribe(cfg.TopicHits, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var h events.Hit
		if err := json.Unmarshal(msg.Payload(), &h); err != nil {
			log.Printf("serial: hit unmarshal error: %v", err)
			return
		}
		line := fmt.Sprintf("HIT %s %d %.1f %.1f %d\r\n", h.Sound, h.ID, h.Yaw, h.Pitch, h.TimeMs)
		if _, err := port.Write([]byte(line)); err != nil {
			log.Printf("serial: write error: %v", err)
		}
	})
	hitToken.Wait()
	if hitToken.Error() != nil {
		return hitToken.Error()
	}
	log.Printf("serial: subscribed to %s", cfg.TopicHits)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("serial: shutting down")
	client.Disconnect(250)
	return nil
}
