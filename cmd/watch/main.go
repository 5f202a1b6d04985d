package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"gridlegion.ai/internal/protocol"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "telemetry ws url")
		owners     = flag.String("owners", "", "comma-separated owners to follow (empty: all)")
		schemasDir = flag.String("schemas", "", "validate every frame against the schemas in this dir (optional)")
		raw        = flag.Bool("raw", false, "print frames verbatim")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	var v *validator
	if *schemasDir != "" {
		var err error
		if v, err = newValidator(*schemasDir); err != nil {
			logger.Fatalf("schemas: %v", err)
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version}
	for _, o := range strings.Split(*owners, ",") {
		if o = strings.TrimSpace(o); o != "" {
			sub.Owners = append(sub.Owners, o)
		}
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if v != nil {
			if err := v.validate(base.Type, msg); err != nil {
				logger.Printf("INVALID %s: %v", base.Type, err)
			}
		}
		if *raw {
			logger.Print(string(msg))
			continue
		}
		switch base.Type {
		case protocol.TypeAgent:
			var s protocol.AgentSnapshot
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			logger.Printf("t=%.2f %-9s %s/%s state=%s task=%s carried=%d threat=%d",
				s.Time, s.Reason, s.Owner, s.AgentID, s.State, s.TaskKind, s.CarriedWeight, s.ThreatLevel)
		case protocol.TypeTaskDone:
			var r protocol.TaskRecord
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			logger.Printf("t=%.2f TASK_DONE %s/%s %s -> %s (%.2f)", r.Finished, r.Owner, r.AgentID, r.Kind, r.Result, r.Duration)
		case protocol.TypeAgentRemoved:
			var r protocol.AgentRemoved
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			logger.Printf("t=%.2f REMOVED %s/%s reason=%s", r.Time, r.Owner, r.AgentID, r.Reason)
		}
	}
}

type validator struct {
	byType map[string]*jsonschema.Schema
}

func newValidator(dir string) (*validator, error) {
	files := map[string]string{
		protocol.TypeAgent:        "agent_snapshot.schema.json",
		protocol.TypeTaskDone:     "task_record.schema.json",
		protocol.TypeAgentRemoved: "agent_removed.schema.json",
	}
	v := &validator{byType: map[string]*jsonschema.Schema{}}
	for typ, name := range files {
		s, err := jsonschema.Compile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		v.byType[typ] = s
	}
	return v, nil
}

func (v *validator) validate(typ string, msg []byte) error {
	s := v.byType[typ]
	if s == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(msg, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
