// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sampleCommand struct {
	Action string `cbor:"action"`
	Key    []byte `cbor:"key,omitempty"`
	Count  int    `cbor:"count"`
}

func TestMarshalDeterministic(t *testing.T) {
	message := map[string]any{
		"target": "all",
		"kind":   "COMMAND",
		"source": "vault-control",
	}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(message)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("map encoding is not deterministic: %x != %x", first, again)
		}
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	payload, err := Marshal(sampleCommand{Action: "sync_master_key", Key: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}

	type wrapper struct {
		Kind    string     `cbor:"kind"`
		Payload RawMessage `cbor:"payload"`
	}
	data, err := Marshal(wrapper{Kind: "COMMAND", Payload: payload})
	if err != nil {
		t.Fatalf("Marshal wrapper: %v", err)
	}

	var decoded wrapper
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal wrapper: %v", err)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload bytes changed in transit: %x != %x", decoded.Payload, payload)
	}

	var command sampleCommand
	if err := Unmarshal(decoded.Payload, &command); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if command.Action != "sync_master_key" || !bytes.Equal(command.Key, []byte{1, 2, 3}) {
		t.Errorf("payload = %+v", command)
	}
}

func TestDecodeAnyUsesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["outer"])
	}
}

func TestStreamSequence(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	frames := [][]byte{[]byte("first"), []byte("second"), {}}
	for _, frame := range frames {
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index, want := range frames {
		var got []byte
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode frame %d: %v", index, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", index, got, want)
		}
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var command sampleCommand
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &command); err == nil {
		t.Error("expected error decoding garbage")
	}
}
