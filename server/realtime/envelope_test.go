package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// TestWrapBindsEventNameToPayload verifies the payload type dictates the
// event name.
func TestWrapBindsEventNameToPayload(t *testing.T) {
	env := Wrap(model.VideoStatus{Status: "playing", TokenID: "tok"})
	if env.Event != model.EventVideoStatus {
		t.Errorf("expected %q, got %q", model.EventVideoStatus, env.Event)
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Errorf("timestamp not RFC 3339: %q", env.Timestamp)
	}
}

// TestWrapSerializesDataInline verifies the wire shape: event, data,
// timestamp at the top level with the payload nested under data.
func TestWrapSerializesDataInline(t *testing.T) {
	data, err := json.Marshal(Wrap(model.BatchAck{BatchID: "b-1", DeviceID: "d1"}))
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Event string `json:"event"`
		Data  struct {
			BatchID string `json:"batchId"`
		} `json:"data"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Event != model.EventBatchAck || decoded.Data.BatchID != "b-1" || decoded.Timestamp == "" {
		t.Errorf("unexpected wire shape: %s", data)
	}
}

// TestDeviceEventNameSwitches verifies the connected/disconnected payload
// picks its event name from the flag.
func TestDeviceEventNameSwitches(t *testing.T) {
	if got := (model.DeviceEvent{}).EventName(); got != model.EventDeviceConnected {
		t.Errorf("expected %q, got %q", model.EventDeviceConnected, got)
	}
	if got := (model.DeviceEvent{Disconnected: true}).EventName(); got != model.EventDeviceDisconnect {
		t.Errorf("expected %q, got %q", model.EventDeviceDisconnect, got)
	}
}
