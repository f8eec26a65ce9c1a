package events

import (
	"sync"
	"testing"
	"time"
)

// collectListener накапливает полученные события.
type collectListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *collectListener) OnEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *collectListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// panicListener всегда паникует.
type panicListener struct{}

func (panicListener) OnEvent(Event) { panic("listener boom") }

func TestPublish_NoListeners(t *testing.T) {
	d := NewDispatcher(nil)

	// Публикация без listener'ов не должна паниковать
	d.Publish(PollStarted{TaskType: "charge", Timestamp: time.Now()})
}

func TestPublish_DeliversToRegisteredKindOnly(t *testing.T) {
	d := NewDispatcher(nil)

	polls := &collectListener{}
	execs := &collectListener{}
	d.Register(KindPollCompleted, polls)
	d.Register(KindTaskExecutionCompleted, execs)

	d.Publish(PollCompleted{TaskType: "charge", TaskCount: 2})

	if polls.count() != 1 {
		t.Errorf("poll listener should receive 1 event, got %d", polls.count())
	}
	if execs.count() != 0 {
		t.Errorf("execution listener should receive nothing, got %d", execs.count())
	}
}

func TestPublish_PanicIsolation(t *testing.T) {
	d := NewDispatcher(nil)

	good := &collectListener{}
	// Паникующий listener зарегистрирован первым
	d.Register(KindPollFailure, panicListener{})
	d.Register(KindPollFailure, good)

	d.Publish(PollFailure{TaskType: "charge", Reason: "connection refused"})

	if good.count() != 1 {
		t.Errorf("well-behaved listener must still receive the event, got %d", good.count())
	}
}

func TestRegister_Idempotent(t *testing.T) {
	d := NewDispatcher(nil)

	l := &collectListener{}
	d.Register(KindPollCompleted, l)
	d.Register(KindPollCompleted, l)

	d.Publish(PollCompleted{TaskType: "charge"})

	if l.count() != 1 {
		t.Errorf("duplicate registration must not cause duplicate delivery, got %d", l.count())
	}
}

func TestUnregister(t *testing.T) {
	d := NewDispatcher(nil)

	l := &collectListener{}
	d.Register(KindPollCompleted, l)
	d.Unregister(KindPollCompleted, l)
	// Повторный Unregister — no-op
	d.Unregister(KindPollCompleted, l)

	d.Publish(PollCompleted{TaskType: "charge"})

	if l.count() != 0 {
		t.Errorf("unregistered listener must not receive events, got %d", l.count())
	}
}

func TestRegisterAsync_DoesNotBlockPublisher(t *testing.T) {
	d := NewDispatcher(nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	slow := ListenerFunc(func(Event) {
		close(started)
		<-release
		close(done)
	})
	d.RegisterAsync(KindPollCompleted, slow)

	publishReturned := make(chan struct{})
	go func() {
		d.Publish(PollCompleted{TaskType: "charge"})
		close(publishReturned)
	}()

	select {
	case <-publishReturned:
	case <-time.After(time.Second):
		t.Fatal("Publish must not block on async listener")
	}

	// Listener всё же получает событие
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("async listener was not invoked")
	}
	close(release)
	<-done
}

func TestListenerFunc_Unregisterable(t *testing.T) {
	d := NewDispatcher(nil)

	var n int
	l := ListenerFunc(func(Event) { n++ })
	d.Register(KindPollStarted, l)
	d.Unregister(KindPollStarted, l)

	d.Publish(PollStarted{TaskType: "charge"})

	if n != 0 {
		t.Errorf("unregistered func listener must not fire, got %d calls", n)
	}
}
