// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Session commands accepted on the command topic.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

type commandMessage struct {
	Action string `json:"action"`
}

// ParseCommand accepts a bare "start"/"stop" payload or {"action": "..."}.
func ParseCommand(payload []byte) (string, error) {
	payload = bytes.TrimSpace(payload)
	action := string(payload)
	if len(payload) > 0 && payload[0] == '{' {
		var msg commandMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return "", fmt.Errorf("command: %w", err)
		}
		action = msg.Action
	}

	action = strings.ToLower(strings.TrimSpace(action))
	switch action {
	case CommandStart, CommandStop:
		return action, nil
	}
	return "", fmt.Errorf("command: unknown action %q", action)
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

// RunStatusMQTT publishes every session state, retained, on statusTopic and
// runs start/stop commands received on commandTopic. It returns when ctx is
// done. client must already be connected.
func RunStatusMQTT(ctx context.Context, client mqtt.Client, rec Recorder, statusTopic, commandTopic string) error {
	if commandTopic != "" {
		token := client.Subscribe(commandTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			action, err := ParseCommand(msg.Payload())
			if err != nil {
				log.Printf("mqtt: %v", err)
				return
			}
			// Not on paho's delivery goroutine: Start waits for the session loop.
			go runCommand(ctx, rec, action)
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", commandTopic, token.Error())
		}
		log.Printf("mqtt: listening for session commands on %s", commandTopic)
		defer func() {
			if t := client.Unsubscribe(commandTopic); t.WaitTimeout(time.Second) && t.Error() != nil {
				log.Printf("mqtt: unsubscribe %s: %v", commandTopic, t.Error())
			}
		}()
	}

	states, cancel := rec.Subscribe()
	defer cancel()

	log.Printf("mqtt: publishing session status on %s", statusTopic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-states:
			payload, err := json.Marshal(st)
			if err != nil {
				log.Printf("mqtt: json marshal error (status): %v", err)
				continue
			}
			if token := client.Publish(statusTopic, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("mqtt: publish error (status): %v", token.Error())
			}
		}
	}
}

func runCommand(ctx context.Context, rec Recorder, action string) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var err error
	switch action {
	case CommandStart:
		err = rec.Start(ctx)
	case CommandStop:
		err = rec.Stop(ctx)
	}
	if err != nil {
		log.Printf("mqtt: %s command failed: %v", action, err)
		return
	}
	log.Printf("mqtt: %s command applied", action)
}
