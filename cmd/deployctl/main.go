// Command deployctl reports a deployment event to availability gates, either
// through Kafka or through a gate's admin API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ccastromar/availability-gate/internal/kafkabridge"
	"github.com/ccastromar/availability-gate/internal/mgmt"
)

func main() {
	_ = godotenv.Load()

	deployment := flag.String("deployment", os.Getenv("GATE_DEPLOYMENT_NAME"), "deployment name")
	kind := flag.String("kind", mgmt.KindDeploymentDeployed, "event kind")
	brokers := flag.String("brokers", os.Getenv("KAFKA_BROKERS"), "comma separated Kafka brokers")
	topic := flag.String("topic", envOr("KAFKA_TOPIC", "deployment-events"), "Kafka topic")
	admin := flag.String("admin", "", "gate base URL, e.g. http://localhost:9090 (used instead of Kafka)")
	apiKey := flag.String("api-key", os.Getenv("ADMIN_API_KEY"), "admin API key")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	if *deployment == "" {
		log.Fatalf("deployment is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	if *admin != "" {
		err = viaAdmin(ctx, *admin, *apiKey, *deployment, *kind)
	} else {
		err = viaKafka(ctx, splitList(*brokers), *topic, *deployment, *kind)
	}
	if err != nil {
		log.Fatalf("deployctl: %v", err)
	}
}

func viaKafka(ctx context.Context, brokers []string, topic, deployment, kind string) error {
	p, err := kafkabridge.NewPublisher(brokers, topic)
	if err != nil {
		return err
	}
	defer p.Close()

	msg, err := p.Publish(ctx, deployment, kind)
	if err != nil {
		return err
	}
	fmt.Printf("published %s for %s to %s (id %s)\n", msg.Kind, msg.Deployment, topic, msg.ID)
	return nil
}

func viaAdmin(ctx context.Context, base, apiKey, deployment, kind string) error {
	body, _ := json.Marshal(map[string]string{"kind": kind})
	endpoint := strings.TrimRight(base, "/") + "/admin/deployments/" + url.PathEscape(deployment) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("admin API answered %s", resp.Status)
	}
	fmt.Printf("reported %s for %s to %s\n", kind, deployment, base)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
