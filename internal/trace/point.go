package trace

import (
	"fmt"
	"time"
)

// Point emits an instant event. kv is a flat list of key/value pairs that
// ends up in Event.Extra; a trailing odd key is dropped.
func Point(t Tracer, scope Scope, name, detail string, kv ...string) {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(instant(KindPoint, scope, name, detail, kv))
}

// Errorf emits an error event. Error events pass every level except off.
func Errorf(t Tracer, scope Scope, name, format string, args ...any) {
	if t == nil || !t.Enabled() {
		return
	}
	t.Emit(instant(KindError, scope, name, fmt.Sprintf(format, args...), nil))
}

func instant(kind Kind, scope Scope, name, detail string, kv []string) *Event {
	ev := &Event{Time: time.Now(), Kind: kind, Scope: scope, Name: name, Detail: detail}
	if len(kv) >= 2 {
		ev.Extra = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			ev.Extra[kv[i]] = kv[i+1]
		}
	}
	return ev
}
