package app

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/airdrum/internal/config"
	"github.com/relabs-tech/airdrum/internal/events"
	"github.com/relabs-tech/airdrum/internal/orientation"
)

// poseWait bounds how long calibration waits for a fresh pose sample.
const poseWait = 5 * time.Second

// RunCalibrate zeroes the yaw reference: it reads the current stick heading
// off the pose topic and publishes it as the new yaw offset. Run it while
// pointing the stick at the snare.
func RunCalibrate() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDCalibrate)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("calibrate: connected to MQTT broker at %s", cfg.MQTTBroker)

	poseCh := make(chan orientation.Pose, 1)
	poseToken := client.Subscribe(cfg.TopicPose, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p orientation.Pose
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("calibrate: pose unmarshal error: %v", err)
			return
		}
		select {
		case poseCh <- p:
		default:
		}
	})
	poseToken.Wait()
	if poseToken.Error() != nil {
		return poseToken.Error()
	}

	// Wait for a pose so calibration fails loudly when nothing is producing.
	var pose orientation.Pose
	select {
	case pose = <-poseCh:
	case <-time.After(poseWait):
		return fmt.Errorf("calibrate: no pose received within %s (is the producer running?)", poseWait)
	}

	// The producer folds the current heading into its offset itself; the
	// published pose is already calibrated, so sending it as an absolute
	// offset would discard any previous calibration.
	cmd := events.Command{Action: "zero_yaw"}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if token := client.Publish(cfg.TopicCommands, 0, false, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	log.Printf("calibrate: heading zeroed (was yaw=%.1f pitch=%.1f)", pose.Yaw, pose.Pitch)
	return nil
}
