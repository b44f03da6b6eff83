package hudp

import (
	"fmt"
	"net"
	"testing"
	"time"
)

// newReceiver binds a receiver facade to an OS-assigned port and returns
// it alongside the loopback address a sender can target.
func newReceiver(t *testing.T, opts ...Option) (*Facade, string) {
	t.Helper()
	recv, err := New(RoleReceiver, 0, "", opts...)
	if err != nil {
		t.Fatalf("New receiver: %v", err)
	}
	addr := recv.conn.LocalAddr().(*net.UDPAddr)
	return recv, fmt.Sprintf("127.0.0.1:%d", addr.Port)
}

func TestFacadeHappyPathReliable(t *testing.T) {
	recv, recvAddr := newReceiver(t)
	defer recv.Close()

	send, err := New(RoleSender, 0, recvAddr)
	if err != nil {
		t.Fatalf("New sender: %v", err)
	}
	defer send.Close()

	seq, err := send.Send([]byte("A"), true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if seq != 0 {
		t.Errorf("expected seq 0, got %d", seq)
	}

	rec, ok, err := recv.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !ok {
		t.Fatal("expected a delivery before timeout")
	}
	if rec.Seq != 0 || string(rec.Payload) != "A" {
		t.Errorf("unexpected record: %+v", rec)
	}

	deadline := time.Now().Add(2 * time.Second)
	for send.WindowUsed() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if used := send.WindowUsed(); used != 0 {
		t.Errorf("expected window to slide to 0 after ack, got %d in flight", used)
	}
}

func TestFacadeReliableDeliversInOrder(t *testing.T) {
	recv, recvAddr := newReceiver(t)
	defer recv.Close()

	send, err := New(RoleSender, 0, recvAddr)
	if err != nil {
		t.Fatalf("New sender: %v", err)
	}
	defer send.Close()

	for _, p := range [][]byte{[]byte("zero"), []byte("one"), []byte("two")} {
		if _, err := send.Send(p, true); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	var got []uint16
	for i := 0; i < 3; i++ {
		rec, ok, err := recv.Receive(2 * time.Second)
		if err != nil || !ok {
			t.Fatalf("Receive #%d: ok=%v err=%v", i, ok, err)
		}
		got = append(got, rec.Seq)
	}

	for i, want := range []uint16{0, 1, 2} {
		if got[i] != want {
			t.Errorf("delivery order = %v, want strictly increasing 0,1,2", got)
			break
		}
	}
}

func TestFacadeUnreliableRoundTrip(t *testing.T) {
	recv, recvAddr := newReceiver(t)
	defer recv.Close()

	send, err := New(RoleSender, 0, recvAddr)
	if err != nil {
		t.Fatalf("New sender: %v", err)
	}
	defer send.Close()

	if _, err := send.Send([]byte("ping"), false); err != nil {
		t.Fatalf("Send: %v", err)
	}

	rec, ok, err := recv.Receive(2 * time.Second)
	if err != nil || !ok {
		t.Fatalf("Receive: ok=%v err=%v", ok, err)
	}
	if string(rec.Payload) != "ping" {
		t.Errorf("payload = %q, want %q", rec.Payload, "ping")
	}
}

func TestFacadeWrongRole(t *testing.T) {
	recv, recvAddr := newReceiver(t)
	defer recv.Close()

	if _, err := recv.Send([]byte("x"), true); err != ErrWrongRole {
		t.Errorf("Send on receiver role: got %v, want ErrWrongRole", err)
	}

	send, err := New(RoleSender, 0, recvAddr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer send.Close()

	if _, _, err := send.Receive(0); err != ErrWrongRole {
		t.Errorf("Receive on sender role: got %v, want ErrWrongRole", err)
	}
}

func TestFacadeRequiresRemoteAddrForSender(t *testing.T) {
	_, err := New(RoleSender, 0, "")
	if err != ErrRemoteAddrRequired {
		t.Errorf("got %v, want ErrRemoteAddrRequired", err)
	}
}

func TestFacadeReceiveTimesOutWithoutTraffic(t *testing.T) {
	recv, _ := newReceiver(t)
	defer recv.Close()

	_, ok, err := recv.Receive(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if ok {
		t.Error("expected timeout with no traffic, got a delivery")
	}
}

func TestFacadeCloseIsIdempotent(t *testing.T) {
	recv, _ := newReceiver(t)
	if err := recv.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := recv.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
