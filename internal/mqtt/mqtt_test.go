package mqtt

import "testing"

func TestPublishDropsWhenFull(t *testing.T) {
	m := New()
	for i := 0; i < queueSize; i++ {
		if !m.Publish(Message{Topic: "t"}) {
			t.Fatalf("message %d dropped", i)
		}
	}
	if m.Publish(Message{Topic: "t"}) {
		t.Error("message queued past capacity")
	}
}

func TestServiceWithoutBroker(t *testing.T) {
	m := New()
	if err := m.Connect("", "test"); err != nil {
		t.Fatal(err)
	}
	if m.Connected() {
		t.Fatal("connected without broker")
	}
	m.Publish(Message{Topic: "t", Payload: []byte("x")})
	close(m.C)
	m.Service() // drains and returns
	if err := m.Disconnect(); err != nil {
		t.Error(err)
	}
}
