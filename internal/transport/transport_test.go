package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dcrodman/invaders/internal/core"
)

const testAddress = "127.0.0.1:0"

func TestTCPAcceptor(t *testing.T) {
	acceptor, err := ListenTCP(testAddress, 1, core.NewDiscardLogger())
	if err != nil {
		t.Fatalf("ListenTCP() returned an unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptor.Run(ctx)
	}()

	conn, err := net.DialTCP("tcp", nil, acceptor.Addr())
	if err != nil {
		t.Fatalf("error dialing acceptor: %v", err)
	}
	defer conn.Close()

	select {
	case accepted := <-acceptor.Connections():
		if accepted.RemoteAddr().String() != conn.LocalAddr().String() {
			t.Errorf("accepted connection from %v, dialed from %v", accepted.RemoteAddr(), conn.LocalAddr())
		}
		accepted.Close()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accepted connection")
	}

	cancel()
	wg.Wait()

	if err := acceptor.Close(); err != nil {
		t.Errorf("second Close() returned an error: %v", err)
	}
}

func TestUDPReceiver(t *testing.T) {
	receiver, err := ListenUDP(testAddress, 4, 512, core.NewDiscardLogger())
	if err != nil {
		t.Fatalf("ListenUDP() returned an unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		receiver.Run(ctx)
		close(done)
	}()

	conn, err := net.DialUDP("udp", nil, receiver.Addr())
	if err != nil {
		t.Fatalf("error dialing receiver: %v", err)
	}
	defer conn.Close()

	want := []byte(`{"kind":"shoot","id":1}`)
	if _, err := conn.Write(want); err != nil {
		t.Fatalf("error writing datagram: %v", err)
	}

	select {
	case d := <-receiver.Datagrams():
		if diff := cmp.Diff(want, d.Payload); diff != "" {
			t.Errorf("received payload did not match; diff:\n%s", diff)
		}
		if d.Addr.String() != conn.LocalAddr().String() {
			t.Errorf("datagram addr want = %v, got = %v", conn.LocalAddr(), d.Addr)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for datagram")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receiver did not exit after cancellation")
	}
}

func TestUDPSender(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("error initializing test listener: %v", err)
	}
	defer listener.Close()
	dest := listener.LocalAddr().(*net.UDPAddr)

	sender, err := NewUDPSender(8, core.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewUDPSender() returned an unexpected error: %v", err)
	}

	// Queue before the sender runs so the first wake-up sends a batch.
	payloads := []string{"one", "two", "three"}
	for _, p := range payloads {
		if !sender.Submit(Datagram{Addr: dest, Payload: []byte(p)}) {
			t.Fatalf("Submit(%s) dropped the datagram", p)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sender.Run(ctx)

	_ = listener.SetReadDeadline(time.Now().Add(time.Second))
	var got []string
	buf := make([]byte, 64)
	for range payloads {
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("error reading datagram: %v", err)
		}
		got = append(got, string(buf[:n]))
	}

	if diff := cmp.Diff(payloads, got); diff != "" {
		t.Errorf("sent datagrams did not match; diff:\n%s", diff)
	}
}

func TestUDPSender_SubmitFull(t *testing.T) {
	sender, err := NewUDPSender(1, core.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewUDPSender() returned an unexpected error: %v", err)
	}
	defer sender.Close()

	d := Datagram{Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}, Payload: []byte("x")}
	if !sender.Submit(d) {
		t.Fatal("first Submit() dropped the datagram")
	}
	if sender.Submit(d) {
		t.Error("Submit() on a full queue should drop the datagram")
	}
}
