// Package events fans committed ledger events out to logs, Kafka and S3.
package events

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/sealedauction/core"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("events: build CBOR encoder: %v", err))
	}
}

// EncodeEvent serializes ev in deterministic CBOR, so equal events always
// produce equal bytes.
func EncodeEvent(ev core.Event) ([]byte, error) {
	b, err := encMode.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", ev.Seq, err)
	}
	return b, nil
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(b []byte) (core.Event, error) {
	var ev core.Event
	if err := cbor.Unmarshal(b, &ev); err != nil {
		return core.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// LogSink writes one line per event.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, ev core.Event) error {
	switch ev.Type {
	case core.EventAuctionCreated:
		log.Printf("INFO: [seq %d] auction %d created by %s, ends at %d", ev.Seq, ev.AuctionID, ev.Creator, ev.EndTime)
	case core.EventBidPlaced:
		log.Printf("INFO: [seq %d] bid %d placed on auction %d by %s", ev.Seq, ev.BidIndex, ev.AuctionID, ev.Bidder)
	case core.EventAuctionEnded:
		winner := string(ev.Winner)
		if ev.Winner == core.NoPrincipal {
			winner = "no winner"
		}
		log.Printf("INFO: [seq %d] auction %d ended: %s", ev.Seq, ev.AuctionID, winner)
	default:
		log.Printf("INFO: [seq %d] %s auction %d", ev.Seq, ev.Type, ev.AuctionID)
	}
	return nil
}

// Multi publishes to every sink in order. All sinks are attempted even when
// one fails; the failures are joined.
type Multi []core.EventSink

func (m Multi) Publish(ctx context.Context, ev core.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
