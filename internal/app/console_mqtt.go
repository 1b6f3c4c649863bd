package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rush_recorder/internal/config"
	"github.com/relabs-tech/rush_recorder/internal/session"
)

// RunConsoleMQTT prints every status published by the recorder until
// interrupted.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is not set")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st session.State
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}
		fmt.Println(FormatStatusLine(st))
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

// FormatStatusLine renders a state as one console line, e.g.
//
//	[REC ] RUSH 92.0%  HTTP 200  win=3 inflight=1  Sent 100 → p_rush=0.92 RUSH
func FormatStatusLine(st session.State) string {
	var b strings.Builder

	if st.Lifecycle == session.Recording {
		b.WriteString("[REC ]")
	} else {
		b.WriteString("[IDLE]")
	}

	if r := st.LastResult; r != nil {
		fmt.Fprintf(&b, " %-4s %5.1f%%", r.Status, r.Probability*100)
	} else {
		b.WriteString("  --    -- ")
	}

	if st.LastHTTPStatus != nil {
		fmt.Fprintf(&b, "  HTTP %3d", *st.LastHTTPStatus)
	} else {
		b.WriteString("  HTTP  --")
	}

	fmt.Fprintf(&b, "  win=%d inflight=%d", st.WindowsCompleted, st.WindowsInFlight)
	if st.WindowsDropped > 0 {
		fmt.Fprintf(&b, " dropped=%d", st.WindowsDropped)
	}
	if st.StatusMessage != "" {
		b.WriteString("  ")
		b.WriteString(st.StatusMessage)
	}
	return b.String()
}
