// Package peer defines the messages nodes exchange to discover each other
// and announce stored content. Only the wire shapes live here; nothing in
// this module routes them.
package peer

import (
	"errors"
	"fmt"

	"github.com/aweris/pkgstore"
	"github.com/aweris/pkgstore/internal/codec"
)

var ErrUnknownMessage = errors.New("pkgstore: unknown peer message")

// Message is one of FindNode, Nodes, Ping, Pong or Store.
type Message interface {
	// Name is the message's wire tag.
	Name() string

	isMessage()
}

// Peer describes a reachable node.
type Peer struct {
	ID   pkgstore.Hash `cbor:"id"`
	Addr string        `cbor:"addr"`
}

// FindNode asks for the peers closest to Hash.
type FindNode struct{ Hash pkgstore.Hash }

// Nodes answers FindNode.
type Nodes struct{ Peers []Peer }

type Ping struct{}

type Pong struct{}

// Store announces that the sender holds the content for Hash.
type Store struct{ Hash pkgstore.Hash }

func (FindNode) Name() string { return "find_node" }
func (Nodes) Name() string    { return "nodes" }
func (Ping) Name() string     { return "ping" }
func (Pong) Name() string     { return "pong" }
func (Store) Name() string    { return "store" }

func (FindNode) isMessage() {}
func (Nodes) isMessage()    {}
func (Ping) isMessage()     {}
func (Pong) isMessage()     {}
func (Store) isMessage()    {}

// Encode returns the wire form of m. Unit messages encode as their bare
// tag; the others as a single-entry map from tag to payload.
func Encode(m Message) ([]byte, error) {
	switch m := m.(type) {
	case Ping, Pong:
		return codec.Marshal(m.Name())
	case FindNode:
		return codec.Marshal(map[string]pkgstore.Hash{m.Name(): m.Hash})
	case Store:
		return codec.Marshal(map[string]pkgstore.Hash{m.Name(): m.Hash})
	case Nodes:
		peers := m.Peers
		if peers == nil {
			peers = []Peer{}
		}
		return codec.Marshal(map[string][]Peer{m.Name(): peers})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

// Decode parses a message produced by Encode.
func Decode(data []byte) (Message, error) {
	switch codec.MajorType(data) {
	case codec.MajorTypeTextString:
		var tag string
		if err := codec.Unmarshal(data, &tag); err != nil {
			return nil, fmt.Errorf("decode message tag: %w", err)
		}
		switch tag {
		case Ping{}.Name():
			return Ping{}, nil
		case Pong{}.Name():
			return Pong{}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)

	case codec.MajorTypeMap:
		var wire map[string]codec.RawMessage
		if err := codec.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		if len(wire) != 1 {
			return nil, fmt.Errorf("%w: %d variants", ErrUnknownMessage, len(wire))
		}
		for tag, payload := range wire {
			return decodePayload(tag, payload)
		}
	}
	return nil, fmt.Errorf("%w: unexpected encoding", ErrUnknownMessage)
}

func decodePayload(tag string, payload []byte) (Message, error) {
	switch tag {
	case FindNode{}.Name(), Store{}.Name():
		var h pkgstore.Hash
		if err := codec.Unmarshal(payload, &h); err != nil {
			return nil, fmt.Errorf("decode %s: %w", tag, err)
		}
		if tag == (Store{}).Name() {
			return Store{Hash: h}, nil
		}
		return FindNode{Hash: h}, nil
	case Nodes{}.Name():
		var peers []Peer
		if err := codec.Unmarshal(payload, &peers); err != nil {
			return nil, fmt.Errorf("decode %s: %w", tag, err)
		}
		if peers == nil {
			peers = []Peer{}
		}
		return Nodes{Peers: peers}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
}
