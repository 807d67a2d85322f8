// Package sniffer decodes game traffic out of captured packets.
package sniffer

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/dcrodman/invaders/internal/command"
)

// Message is one command recovered from the capture.
type Message struct {
	Time      time.Time
	Transport string
	Src, Dst  string
	// ToServer is set for traffic addressed to the server port.
	ToServer bool
	Command  command.Command
	Err      error
}

func (m Message) String() string {
	direction := "S<-"
	if m.ToServer {
		direction = "->S"
	}
	body := ""
	if m.Err != nil {
		body = "error: " + m.Err.Error()
	} else if data, err := command.Encode(m.Command); err == nil {
		body = string(data)
	}
	return fmt.Sprintf("%s [%s] %s %s %s %s", m.Time.Format("15:04:05.000"), m.Transport, m.Src, direction, m.Dst, body)
}

// Sniffer reassembles the line-delimited TCP streams and decodes datagrams
// exchanged with the server listening on Port.
type Sniffer struct {
	Port uint16

	// Partial lines per direction of every TCP stream.
	pending map[string]*bytes.Buffer
}

func New(port uint16) *Sniffer {
	return &Sniffer{Port: port, pending: make(map[string]*bytes.Buffer)}
}

// Packet decodes every complete command carried by packet.
func (s *Sniffer) Packet(packet gopacket.Packet) []Message {
	network := packet.NetworkLayer()
	if network == nil {
		return nil
	}
	netFlow := network.NetworkFlow()
	when := packet.Metadata().Timestamp

	switch transport := packet.TransportLayer().(type) {
	case *layers.TCP:
		if uint16(transport.DstPort) != s.Port && uint16(transport.SrcPort) != s.Port {
			return nil
		}
		if len(transport.Payload) == 0 {
			return nil
		}
		toServer := uint16(transport.DstPort) == s.Port
		src := fmt.Sprintf("%s:%d", netFlow.Src(), transport.SrcPort)
		dst := fmt.Sprintf("%s:%d", netFlow.Dst(), transport.DstPort)
		return s.stream(when, src, dst, toServer, transport.Payload)

	case *layers.UDP:
		// Server datagrams leave from an ephemeral port, so only the
		// client-to-server direction can be recognized by port.
		toServer := uint16(transport.DstPort) == s.Port
		msg := Message{
			Time:      when,
			Transport: "udp",
			Src:       fmt.Sprintf("%s:%d", netFlow.Src(), transport.SrcPort),
			Dst:       fmt.Sprintf("%s:%d", netFlow.Dst(), transport.DstPort),
			ToServer:  toServer,
		}
		msg.Command, msg.Err = decode(toServer, transport.Payload)
		return []Message{msg}
	}
	return nil
}

func (s *Sniffer) stream(when time.Time, src, dst string, toServer bool, payload []byte) []Message {
	key := src + ">" + dst
	buf, ok := s.pending[key]
	if !ok {
		buf = &bytes.Buffer{}
		s.pending[key] = buf
	}
	buf.Write(payload)

	var msgs []Message
	for {
		line, err := buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next segment.
			rest := append([]byte(nil), line...)
			buf.Reset()
			buf.Write(rest)
			break
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		msg := Message{Time: when, Transport: "tcp", Src: src, Dst: dst, ToServer: toServer}
		msg.Command, msg.Err = decode(toServer, line)
		msgs = append(msgs, msg)
	}
	return msgs
}

func decode(toServer bool, data []byte) (command.Command, error) {
	if toServer {
		return command.DecodeServer(data)
	}
	return command.DecodeClient(data)
}

// Run decodes every packet from source and writes one line per command to w.
func (s *Sniffer) Run(source *gopacket.PacketSource, w io.Writer) error {
	for packet := range source.Packets() {
		for _, msg := range s.Packet(packet) {
			if _, err := fmt.Fprintln(w, msg); err != nil {
				return err
			}
		}
	}
	return nil
}
