// Command client is a small interactive MQTT client: it connects to a
// broker, subscribes to a filter, prints every message it receives, and
// publishes whatever is piped to its standard input.
package main

import (
	"bufio"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/nymea-go/mqttgo/client"
)

type sink struct {
	log *slog.Logger
}

func (s sink) Connected(sessionPresent bool) {
	color.Green("connected (session present: %v)", sessionPresent)
}
func (s sink) Disconnected(err error) {
	color.Red("disconnected: %v", err)
}
func (s sink) Subscribed(packetID uint16, grantedQos []byte) {
	color.Yellow("subscribed (packet %d, granted %v)", packetID, grantedQos)
}
func (s sink) Unsubscribed(packetID uint16) {
	color.Yellow("unsubscribed (packet %d)", packetID)
}
func (s sink) Published(packetID uint16) {
	s.log.Debug("publish acknowledged", "packet", packetID)
}
func (s sink) MessageReceived(topic string, payload []byte, retained bool) {
	color.Cyan("%s: %s%s", topic, payload, retainedSuffix(retained))
}

func retainedSuffix(retained bool) string {
	if retained {
		return " (retained)"
	}
	return ""
}

func main() {
	host := flag.String("host", "localhost", "broker host")
	port := flag.Uint("port", 1883, "broker port")
	clientID := flag.String("id", "mqttgo-client", "MQTT client id")
	filter := flag.String("sub", "#", "topic filter to subscribe to")
	publishTopic := flag.String("topic", "", "topic to publish stdin lines to; disabled if empty")
	qos := flag.Uint("qos", 0, "QoS to subscribe and publish at")
	flag.Parse()

	log := slog.Default()

	c := client.New(client.Options{
		ClientID:      *clientID,
		AutoReconnect: true,
		Sink:          sink{log: log},
	})

	if err := c.Connect(*host, uint16(*port), true); err != nil {
		log.Error("connect failed", "error", err)
		os.Exit(1)
	}

	if _, err := c.Subscribe(*filter, byte(*qos)); err != nil {
		log.Error("subscribe failed", "error", err)
		os.Exit(1)
	}

	if *publishTopic == "" {
		select {}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, err := c.Publish(*publishTopic, []byte(line), byte(*qos), false); err != nil {
			log.Error("publish failed", "error", err)
		}
	}
}
