package events

import (
	"testing"
)

type capturingEmitter struct {
	events []Event
}

func (c *capturingEmitter) Emit(e Event) {
	c.events = append(c.events, e)
}

func TestBufferFlushPreservesOrder(t *testing.T) {
	buffer := &Buffer{}
	buffer.Emit(TokenAdded{Token: [20]byte{1}})
	buffer.Emit(TokenRemoved{Token: [20]byte{2}})
	buffer.Emit(ContractPaused{})

	sink := &capturingEmitter{}
	buffer.Flush(sink)
	if len(sink.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(sink.events))
	}
	wantTypes := []string{TypeTokenAdded, TypeTokenRemoved, TypeContractPaused}
	for i, want := range wantTypes {
		if got := sink.events[i].EventType(); got != want {
			t.Fatalf("event %d: got %s want %s", i, got, want)
		}
	}
	if buffer.Len() != 0 {
		t.Fatalf("flush should clear the buffer, %d left", buffer.Len())
	}
}

func TestBufferDiscard(t *testing.T) {
	buffer := &Buffer{}
	buffer.Emit(ContractPaused{})
	buffer.Discard()

	sink := &capturingEmitter{}
	buffer.Flush(sink)
	if len(sink.events) != 0 {
		t.Fatalf("discarded events must not reach the sink")
	}
}

func TestBufferTruncateKeepsEarlierEvents(t *testing.T) {
	buffer := &Buffer{}
	buffer.Emit(TokenAdded{Token: [20]byte{1}})
	mark := buffer.Len()
	buffer.Emit(TokenAdded{Token: [20]byte{2}})
	buffer.Emit(TokenAdded{Token: [20]byte{3}})
	buffer.Truncate(mark)

	sink := &capturingEmitter{}
	buffer.Flush(sink)
	if len(sink.events) != 1 {
		t.Fatalf("expected only the pre-mark event, got %d", len(sink.events))
	}
	added, ok := sink.events[0].(TokenAdded)
	if !ok || added.Token != [20]byte{1} {
		t.Fatalf("unexpected surviving event %+v", sink.events[0])
	}
}

func TestBufferTruncateOutOfRange(t *testing.T) {
	buffer := &Buffer{}
	buffer.Emit(ContractPaused{})
	buffer.Truncate(-1)
	buffer.Truncate(5)
	if buffer.Len() != 1 {
		t.Fatalf("out-of-range marks must leave the buffer untouched")
	}
}

func TestBufferIgnoresNil(t *testing.T) {
	buffer := &Buffer{}
	buffer.Emit(nil)
	if buffer.Len() != 0 {
		t.Fatalf("nil events must not be buffered")
	}
}

func TestEventAttributePayloads(t *testing.T) {
	merchant := [20]byte{0xaa}
	evt := MerchantRegistered{Merchant: merchant, ID: 7, Timestamp: 1234}.Event()
	if evt.Type != TypeMerchantRegistered {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["id"] != "7" {
		t.Fatalf("unexpected id attribute %q", evt.Attributes["id"])
	}
	if evt.Attributes["timestamp"] != "1234" {
		t.Fatalf("unexpected timestamp attribute %q", evt.Attributes["timestamp"])
	}
	if evt.Attributes["merchant"] == "" {
		t.Fatalf("merchant attribute must carry the bech32 address")
	}

	created := InvoiceCreated{ID: 3, Merchant: merchant, Amount: nil, Token: [20]byte{0xbb}}.Event()
	if created.Attributes["amount"] != "0" {
		t.Fatalf("nil amount should render as 0, got %q", created.Attributes["amount"])
	}
}
