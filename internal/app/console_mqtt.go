package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/airdrum/internal/config"
	"github.com/relabs-tech/airdrum/internal/events"
	"github.com/relabs-tech/airdrum/internal/orientation"
)

func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to hits
	hitToken := client.Subscribe(cfg.TopicHits, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var h events.Hit
		if err := json.Unmarshal(msg.Payload(), &h); err != nil {
			log.Printf("console: hit unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[HIT ]  %-8s  YAW=%6.1f  PITCH=%6.1f  t=%dms\n",
			h.Sound, h.Yaw, h.Pitch, h.TimeMs,
		)
	})
	hitToken.Wait()
	if hitToken.Error() != nil {
		return hitToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicHits)

	// Subscribe to pose
	poseToken := client.Subscribe(cfg.TopicPose, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p orientation.Pose
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("console: pose unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[POSE]  ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f\n",
			p.Roll, p.Pitch, p.Yaw,
		)
	})
	poseToken.Wait()
	if poseToken.Error() != nil {
		return poseToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPose)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
