package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/airdrum/internal/config"
	"github.com/relabs-tech/airdrum/internal/events"
	"github.com/relabs-tech/airdrum/internal/orientation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// recentHits bounds the hit history kept for the dashboard.
const recentHits = 16

// kitState is the dashboard snapshot: latest stick pose, recent hits and
// per-voice counts.
type kitState struct {
	Pose     orientation.Pose `json:"pose"`
	HavePose bool             `json:"have_pose"`
	Hits     []events.Hit     `json:"hits"`
	Counts   map[string]int   `json:"counts"`
}

type webState struct {
	mu       sync.RWMutex
	pose     orientation.Pose
	havePose bool
	hits     []events.Hit
	counts   map[string]int
}

func (s *webState) snapshot() kitState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := kitState{
		Pose:     s.pose,
		HavePose: s.havePose,
		Hits:     append([]events.Hit(nil), s.hits...),
		Counts:   make(map[string]int, len(s.counts)),
	}
	for k, v := range s.counts {
		out.Counts[k] = v
	}
	return out
}

func RunWeb() error {
	cfg := config.Get()
	state := &webState{counts: make(map[string]int)}

	// 1) Connect to MQTT broker on the Pi
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to pose and hit topics and keep the latest state
	poseToken := client.Subscribe(cfg.TopicPose, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p orientation.Pose
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("web: pose unmarshal error: %v", err)
			return
		}
		state.mu.Lock()
		state.pose = p
		state.havePose = true
		state.mu.Unlock()
	})
	poseToken.Wait()
	if poseToken.Error() != nil {
		return poseToken.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicPose)

	hitToken := client.Subscribe(cfg.TopicHits, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var h events.Hit
		if err := json.Unmarshal(msg.Payload(), &h); err != nil {
			log.Printf("web: hit unmarshal error: %v", err)
			return
		}
		state.mu.Lock()
		state.hits = append(state.hits, h)
		if len(state.hits) > recentHits {
			state.hits = state.hits[len(state.hits)-recentHits:]
		}
		state.counts[h.Sound]++
		state.mu.Unlock()
	})
	hitToken.Wait()
	if hitToken.Error() != nil {
		return hitToken.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicHits)

	// 3) JSON API endpoint: latest kit state
	http.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		snap := state.snapshot()
		if !snap.HavePose && len(snap.Hits) == 0 {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// 4) Commands from the dashboard: recalibrate (zero yaw to the current
	// heading) and kick, forwarded onto the command topic.
	http.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var cmd events.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, "bad command", http.StatusBadRequest)
			return
		}
		payload, err := json.Marshal(cmd)
		if err != nil {
			http.Error(w, "bad command", http.StatusBadRequest)
			return
		}
		if token := client.Publish(cfg.TopicCommands, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("web: MQTT publish error (commands): %v", token.Error())
			http.Error(w, "publish failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// 5) WebSocket push of the kit state for the live dashboard
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			if err := conn.WriteJSON(state.snapshot()); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	})

	// 6) The dashboard page itself
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, dashboardHTML)
	})

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>airdrum</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; margin: 2em; }
h1 { color: #6cf; }
#pose, #hits { margin-top: 1em; }
.hit { color: #fc6; }
button { font-family: monospace; margin-right: 1em; }
</style>
</head>
<body>
<h1>airdrum</h1>
<div>
<button onclick="cmd('zero_yaw', 0)">zero yaw</button>
<button onclick="cmd('kick', 0)">kick</button>
</div>
<div id="pose">waiting for pose...</div>
<div id="counts"></div>
<div id="hits"></div>
<script>
let pose = {yaw: 0};
function cmd(action, value) {
  fetch('/api/command', {method: 'POST', body: JSON.stringify({action: action, value: value})});
}
const ws = new WebSocket('ws://' + location.host + '/ws');
ws.onmessage = function(ev) {
  const s = JSON.parse(ev.data);
  pose = s.pose;
  document.getElementById('pose').textContent =
    'yaw=' + s.pose.yaw.toFixed(1) + ' pitch=' + s.pose.pitch.toFixed(1) + ' roll=' + s.pose.roll.toFixed(1);
  document.getElementById('counts').textContent = JSON.stringify(s.counts);
  document.getElementById('hits').innerHTML =
    (s.hits || []).slice().reverse().map(h =>
      '<div class="hit">' + h.sound + ' yaw=' + h.yaw.toFixed(1) + ' pitch=' + h.pitch.toFixed(1) + '</div>'
    ).join('');
};
</script>
</body>
</html>
`
