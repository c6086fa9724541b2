package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"stronghold/server/logging"
)

// ConsoleSink renders events as single human-readable lines.
type ConsoleSink struct {
	logger *log.Logger
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags)}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	var line strings.Builder
	fmt.Fprintf(&line, "[%s] tick=%d actor=%s severity=%s", event.Type, event.Tick, refLabel(event.Actor), event.Severity)
	if len(event.Targets) > 0 {
		labels := make([]string, len(event.Targets))
		for i, target := range event.Targets {
			labels[i] = refLabel(target)
		}
		fmt.Fprintf(&line, " targets=%s", strings.Join(labels, ","))
	}
	if event.Payload != nil {
		if data, err := json.Marshal(event.Payload); err == nil {
			fmt.Fprintf(&line, " payload=%s", data)
		} else {
			fmt.Fprintf(&line, " payload=%v", event.Payload)
		}
	}
	s.logger.Print(line.String())
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func refLabel(ref logging.EntityRef) string {
	switch {
	case ref.ID == "":
		return string(ref.Kind)
	case ref.Kind == "":
		return ref.ID
	}
	return string(ref.Kind) + ":" + ref.ID
}
