package command

import (
	"testing"
)

func TestPolicy_Affinity(t *testing.T) {
	tests := []struct {
		name string
		lan  bool
		cmd  Command
		want Affinity
	}{
		{name: "reliable stays reliable", cmd: GameStart{}, want: Reliable},
		{name: "best effort", cmd: MoveEntity{}, want: BestEffort},
		{name: "client input is best effort", cmd: MoveLeft{}, want: BestEffort},
		{name: "roster is reliable", cmd: Roster{}, want: Reliable},
		{name: "lan mode downgrades", lan: true, cmd: MoveEntity{}, want: Reliable},
		{name: "lan mode keeps reliable", lan: true, cmd: AssignID{}, want: Reliable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{LANMode: tt.lan}
			if got := p.Affinity(tt.cmd); got != tt.want {
				t.Errorf("Affinity() want = %v, got = %v", tt.want, got)
			}
		})
	}
}

// recorder notes which handler method was invoked.
type recorder struct {
	called Kind
}

func (r *recorder) ConfigurePlayer(ConfigurePlayer) error { r.called = ConfigurePlayerKind; return nil }
func (r *recorder) MoveLeft(MoveLeft) error               { r.called = MoveLeftKind; return nil }
func (r *recorder) MoveRight(MoveRight) error             { r.called = MoveRightKind; return nil }
func (r *recorder) Shoot(Shoot) error                     { r.called = ShootKind; return nil }

func TestServerCommand_ExecuteOn(t *testing.T) {
	for _, cmd := range []ServerCommand{ConfigurePlayer{}, MoveLeft{}, MoveRight{}, Shoot{}} {
		r := &recorder{}
		if err := cmd.ExecuteOn(r); err != nil {
			t.Fatalf("ExecuteOn() returned an unexpected error: %v", err)
		}
		if r.called != cmd.Kind() {
			t.Errorf("%s dispatched to %s", cmd.Kind(), r.called)
		}
	}
}
