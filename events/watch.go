package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Decode parses one published envelope.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode round event: %w", err)
	}
	if ev.Type != EventRoundSettled || ev.Data == nil {
		return Event{}, fmt.Errorf("decode round event: unexpected type %q", ev.Type)
	}
	return ev, nil
}

// Watch subscribes to every kind under subjectPrefix. Messages that fail to
// decode are passed to onErr and skipped.
func Watch(nc *nats.Conn, subjectPrefix string, fn func(Event), onErr func(error)) (*nats.Subscription, error) {
	return nc.Subscribe(subjectPrefix+".>", func(msg *nats.Msg) {
		ev, err := Decode(msg.Data)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(ev)
	})
}
